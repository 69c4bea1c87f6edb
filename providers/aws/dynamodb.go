package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/landform-io/landform/internal/provider"
)

type TableConfig struct {
	TableName   string                `json:"tableName"`
	Attributes  []AttributeDefinition `json:"attributes"`
	KeySchema   []KeySchemaElement    `json:"keySchema"`
	BillingMode string                `json:"billingMode"`
	Tags        map[string]string     `json:"tags"`
}

type AttributeDefinition struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type KeySchemaElement struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (p *Provider) createTable(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg TableConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, provider.NewError(KindTable, provider.OpCreate, err)
	}

	defs := make([]types.AttributeDefinition, 0, len(cfg.Attributes))
	for _, a := range cfg.Attributes {
		defs = append(defs, types.AttributeDefinition{
			AttributeName: aws.String(a.Name),
			AttributeType: types.ScalarAttributeType(a.Type),
		})
	}
	schema := make([]types.KeySchemaElement, 0, len(cfg.KeySchema))
	for _, k := range cfg.KeySchema {
		schema = append(schema, types.KeySchemaElement{
			AttributeName: aws.String(k.Name),
			KeyType:       types.KeyType(k.Type),
		})
	}

	input := &dynamodb.CreateTableInput{
		TableName:            aws.String(cfg.TableName),
		AttributeDefinitions: defs,
		KeySchema:            schema,
	}
	if cfg.BillingMode != "" {
		input.BillingMode = types.BillingMode(cfg.BillingMode)
	}
	if len(cfg.Tags) > 0 {
		tags := make([]types.Tag, 0, len(cfg.Tags))
		for k, v := range cfg.Tags {
			tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(v)})
		}
		input.Tags = tags
	}

	resp, err := p.dynamodbClient.CreateTable(ctx, input)
	if err != nil {
		return "", nil, p.classify(KindTable, provider.OpCreate, err)
	}

	name := aws.ToString(resp.TableDescription.TableName)
	return name, map[string]any{
		"name": name,
		"arn":  aws.ToString(resp.TableDescription.TableArn),
	}, nil
}

func (p *Provider) updateTable(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg TableConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, provider.NewError(KindTable, provider.OpUpdate, err)
	}

	input := &dynamodb.UpdateTableInput{
		TableName: aws.String(id),
	}
	if cfg.BillingMode != "" {
		input.BillingMode = types.BillingMode(cfg.BillingMode)
	}

	resp, err := p.dynamodbClient.UpdateTable(ctx, input)
	if err != nil {
		return nil, p.classify(KindTable, provider.OpUpdate, err)
	}

	return map[string]any{
		"name": aws.ToString(resp.TableDescription.TableName),
		"arn":  aws.ToString(resp.TableDescription.TableArn),
	}, nil
}

func (p *Provider) deleteTable(ctx context.Context, id string) error {
	_, err := p.dynamodbClient.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(id),
	})
	if err != nil && !isNotFound(err) {
		return p.classify(KindTable, provider.OpDelete, err)
	}
	return nil
}
