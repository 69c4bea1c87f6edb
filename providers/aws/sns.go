package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/landform-io/landform/internal/provider"
)

type TopicConfig struct {
	Name           string            `json:"name"`
	DisplayName    string            `json:"displayName"`
	FifoTopic      bool              `json:"fifoTopic"`
	KmsMasterKeyID string            `json:"kmsMasterKeyId"`
	Tags           map[string]string `json:"tags"`
}

func (p *Provider) createTopic(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg TopicConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, provider.NewError(KindTopic, provider.OpCreate, err)
	}

	input := &sns.CreateTopicInput{
		Name:       aws.String(cfg.Name),
		Attributes: map[string]string{},
	}
	if cfg.DisplayName != "" {
		input.Attributes["DisplayName"] = cfg.DisplayName
	}
	if cfg.FifoTopic {
		input.Attributes["FifoTopic"] = "true"
	}
	if cfg.KmsMasterKeyID != "" {
		input.Attributes["KmsMasterKeyId"] = cfg.KmsMasterKeyID
	}
	if len(cfg.Tags) > 0 {
		tags := make([]types.Tag, 0, len(cfg.Tags))
		for k, v := range cfg.Tags {
			tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(v)})
		}
		input.Tags = tags
	}

	resp, err := p.snsClient.CreateTopic(ctx, input)
	if err != nil {
		return "", nil, p.classify(KindTopic, provider.OpCreate, err)
	}

	arn := aws.ToString(resp.TopicArn)
	return arn, map[string]any{
		"arn":  arn,
		"name": cfg.Name,
	}, nil
}

func (p *Provider) updateTopic(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg TopicConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, provider.NewError(KindTopic, provider.OpUpdate, err)
	}

	for name, value := range map[string]string{
		"DisplayName":    cfg.DisplayName,
		"KmsMasterKeyId": cfg.KmsMasterKeyID,
	} {
		if value == "" {
			continue
		}
		_, err := p.snsClient.SetTopicAttributes(ctx, &sns.SetTopicAttributesInput{
			TopicArn:       aws.String(id),
			AttributeName:  aws.String(name),
			AttributeValue: aws.String(value),
		})
		if err != nil {
			return nil, p.classify(KindTopic, provider.OpUpdate, err)
		}
	}

	return map[string]any{
		"arn":  id,
		"name": cfg.Name,
	}, nil
}

func (p *Provider) deleteTopic(ctx context.Context, id string) error {
	_, err := p.snsClient.DeleteTopic(ctx, &sns.DeleteTopicInput{TopicArn: aws.String(id)})
	if err != nil && !isNotFound(err) {
		return p.classify(KindTopic, provider.OpDelete, err)
	}
	return nil
}
