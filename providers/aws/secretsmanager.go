package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/landform-io/landform/internal/provider"
)

type SecretConfig struct {
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	KmsKeyID     string            `json:"kmsKeyId"`
	SecretString string            `json:"secretString"`
	Tags         map[string]string `json:"tags"`
}

func (p *Provider) createSecret(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg SecretConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, provider.NewError(KindSecret, provider.OpCreate, err)
	}

	input := &secretsmanager.CreateSecretInput{
		Name: aws.String(cfg.Name),
	}
	if cfg.Description != "" {
		input.Description = aws.String(cfg.Description)
	}
	if cfg.KmsKeyID != "" {
		input.KmsKeyId = aws.String(cfg.KmsKeyID)
	}
	if cfg.SecretString != "" {
		input.SecretString = aws.String(cfg.SecretString)
	}
	if len(cfg.Tags) > 0 {
		tags := make([]types.Tag, 0, len(cfg.Tags))
		for k, v := range cfg.Tags {
			tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(v)})
		}
		input.Tags = tags
	}

	resp, err := p.secretsmanagerClient.CreateSecret(ctx, input)
	if err != nil {
		return "", nil, p.classify(KindSecret, provider.OpCreate, err)
	}

	arn := aws.ToString(resp.ARN)
	return arn, map[string]any{
		"arn":  arn,
		"name": aws.ToString(resp.Name),
	}, nil
}

func (p *Provider) updateSecret(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg SecretConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, provider.NewError(KindSecret, provider.OpUpdate, err)
	}

	input := &secretsmanager.UpdateSecretInput{
		SecretId: aws.String(id),
	}
	if cfg.Description != "" {
		input.Description = aws.String(cfg.Description)
	}
	if cfg.KmsKeyID != "" {
		input.KmsKeyId = aws.String(cfg.KmsKeyID)
	}

	resp, err := p.secretsmanagerClient.UpdateSecret(ctx, input)
	if err != nil {
		return nil, p.classify(KindSecret, provider.OpUpdate, err)
	}

	if cfg.SecretString != "" {
		_, err = p.secretsmanagerClient.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
			SecretId:     aws.String(id),
			SecretString: aws.String(cfg.SecretString),
		})
		if err != nil {
			return nil, p.classify(KindSecret, provider.OpUpdate, err)
		}
	}

	return map[string]any{
		"arn":  aws.ToString(resp.ARN),
		"name": aws.ToString(resp.Name),
	}, nil
}

// deleteSecret skips the recovery window. Destroyed stacks should not
// leave secrets in a scheduled-deletion state that blocks re-creating
// a secret with the same name.
func (p *Provider) deleteSecret(ctx context.Context, id string) error {
	_, err := p.secretsmanagerClient.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   aws.String(id),
		ForceDeleteWithoutRecovery: aws.Bool(true),
	})
	if err != nil && !isNotFound(err) {
		return p.classify(KindSecret, provider.OpDelete, err)
	}
	return nil
}
