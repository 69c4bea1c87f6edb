package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"

	"github.com/landform-io/landform/internal/provider"
)

type AlarmConfig struct {
	AlarmName          string            `json:"alarmName"`
	MetricName         string            `json:"metricName"`
	Namespace          string            `json:"namespace"`
	Threshold          float64           `json:"threshold"`
	ComparisonOperator string            `json:"comparisonOperator"`
	EvaluationPeriods  int               `json:"evaluationPeriods"`
	Period             int               `json:"period"`
	Statistic          string            `json:"statistic"`
	Dimensions         map[string]string `json:"dimensions"`
	AlarmActions       []string          `json:"alarmActions"`
}

type LogGroupConfig struct {
	LogGroupName    string            `json:"logGroupName"`
	RetentionInDays int               `json:"retentionInDays"`
	Tags            map[string]string `json:"tags"`
}

// putAlarm backs both create and update. PutMetricAlarm is an upsert,
// so the two operations are the same call.
func (p *Provider) putAlarm(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg AlarmConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, provider.NewError(KindAlarm, provider.OpCreate, err)
	}

	input := &cloudwatch.PutMetricAlarmInput{
		AlarmName:          aws.String(cfg.AlarmName),
		MetricName:         aws.String(cfg.MetricName),
		Namespace:          aws.String(cfg.Namespace),
		Threshold:          aws.Float64(cfg.Threshold),
		ComparisonOperator: types.ComparisonOperator(cfg.ComparisonOperator),
		EvaluationPeriods:  aws.Int32(int32(cfg.EvaluationPeriods)),
		Period:             aws.Int32(int32(cfg.Period)),
		Statistic:          types.Statistic(cfg.Statistic),
	}
	if len(cfg.Dimensions) > 0 {
		dims := make([]types.Dimension, 0, len(cfg.Dimensions))
		for k, v := range cfg.Dimensions {
			dims = append(dims, types.Dimension{Name: aws.String(k), Value: aws.String(v)})
		}
		input.Dimensions = dims
	}
	if len(cfg.AlarmActions) > 0 {
		input.AlarmActions = cfg.AlarmActions
	}

	if _, err := p.cloudwatchClient.PutMetricAlarm(ctx, input); err != nil {
		return "", nil, p.classify(KindAlarm, provider.OpCreate, err)
	}

	return cfg.AlarmName, map[string]any{
		"name": cfg.AlarmName,
		"arn":  fmt.Sprintf("arn:aws:cloudwatch:%s:*:alarm:%s", p.region, cfg.AlarmName),
	}, nil
}

func (p *Provider) deleteAlarm(ctx context.Context, id string) error {
	_, err := p.cloudwatchClient.DeleteAlarms(ctx, &cloudwatch.DeleteAlarmsInput{
		AlarmNames: []string{id},
	})
	if err != nil && !isNotFound(err) {
		return p.classify(KindAlarm, provider.OpDelete, err)
	}
	return nil
}

func (p *Provider) createLogGroup(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg LogGroupConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, provider.NewError(KindLogGroup, provider.OpCreate, err)
	}

	input := &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(cfg.LogGroupName),
	}
	if len(cfg.Tags) > 0 {
		input.Tags = cfg.Tags
	}

	if _, err := p.cloudwatchlogsClient.CreateLogGroup(ctx, input); err != nil {
		return "", nil, p.classify(KindLogGroup, provider.OpCreate, err)
	}

	if cfg.RetentionInDays > 0 {
		_, err := p.cloudwatchlogsClient.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
			LogGroupName:    aws.String(cfg.LogGroupName),
			RetentionInDays: aws.Int32(int32(cfg.RetentionInDays)),
		})
		if err != nil {
			return "", nil, p.classify(KindLogGroup, provider.OpCreate, err)
		}
	}

	return cfg.LogGroupName, p.logGroupOutputs(cfg.LogGroupName), nil
}

func (p *Provider) updateLogGroup(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg LogGroupConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, provider.NewError(KindLogGroup, provider.OpUpdate, err)
	}

	var err error
	if cfg.RetentionInDays > 0 {
		_, err = p.cloudwatchlogsClient.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
			LogGroupName:    aws.String(id),
			RetentionInDays: aws.Int32(int32(cfg.RetentionInDays)),
		})
	} else {
		_, err = p.cloudwatchlogsClient.DeleteRetentionPolicy(ctx, &cloudwatchlogs.DeleteRetentionPolicyInput{
			LogGroupName: aws.String(id),
		})
	}
	if err != nil {
		return nil, p.classify(KindLogGroup, provider.OpUpdate, err)
	}

	return p.logGroupOutputs(id), nil
}

func (p *Provider) deleteLogGroup(ctx context.Context, id string) error {
	_, err := p.cloudwatchlogsClient.DeleteLogGroup(ctx, &cloudwatchlogs.DeleteLogGroupInput{
		LogGroupName: aws.String(id),
	})
	if err != nil && !isNotFound(err) {
		return p.classify(KindLogGroup, provider.OpDelete, err)
	}
	return nil
}

func (p *Provider) logGroupOutputs(name string) map[string]any {
	return map[string]any{
		"name": name,
		"arn":  fmt.Sprintf("arn:aws:logs:%s:*:log-group:%s", p.region, name),
	}
}
