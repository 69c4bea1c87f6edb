package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"

	"github.com/landform-io/landform/internal/provider"
)

// keyDeletionWindowDays is the minimum pending window KMS accepts.
// Keys are never destroyed immediately, so a short window keeps
// destroyed stacks from lingering for the 30-day default.
const keyDeletionWindowDays = 7

type KeyConfig struct {
	Description string            `json:"description"`
	KeyUsage    string            `json:"keyUsage"`
	Enabled     *bool             `json:"enabled"`
	Tags        map[string]string `json:"tags"`
}

func (p *Provider) createKey(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg KeyConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, provider.NewError(KindKey, provider.OpCreate, err)
	}

	input := &kms.CreateKeyInput{}
	if cfg.Description != "" {
		input.Description = aws.String(cfg.Description)
	}
	if cfg.KeyUsage != "" {
		input.KeyUsage = types.KeyUsageType(cfg.KeyUsage)
	}
	if len(cfg.Tags) > 0 {
		tags := make([]types.Tag, 0, len(cfg.Tags))
		for k, v := range cfg.Tags {
			tags = append(tags, types.Tag{TagKey: aws.String(k), TagValue: aws.String(v)})
		}
		input.Tags = tags
	}

	resp, err := p.kmsClient.CreateKey(ctx, input)
	if err != nil {
		return "", nil, p.classify(KindKey, provider.OpCreate, err)
	}
	keyID := aws.ToString(resp.KeyMetadata.KeyId)

	if cfg.Enabled != nil && !*cfg.Enabled {
		_, err = p.kmsClient.DisableKey(ctx, &kms.DisableKeyInput{KeyId: aws.String(keyID)})
		if err != nil {
			return "", nil, p.classify(KindKey, provider.OpCreate, err)
		}
	}

	return keyID, map[string]any{
		"keyId": keyID,
		"arn":   aws.ToString(resp.KeyMetadata.Arn),
	}, nil
}

func (p *Provider) updateKey(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg KeyConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, provider.NewError(KindKey, provider.OpUpdate, err)
	}

	if cfg.Description != "" {
		_, err := p.kmsClient.UpdateKeyDescription(ctx, &kms.UpdateKeyDescriptionInput{
			KeyId:       aws.String(id),
			Description: aws.String(cfg.Description),
		})
		if err != nil {
			return nil, p.classify(KindKey, provider.OpUpdate, err)
		}
	}

	if cfg.Enabled != nil {
		var err error
		if *cfg.Enabled {
			_, err = p.kmsClient.EnableKey(ctx, &kms.EnableKeyInput{KeyId: aws.String(id)})
		} else {
			_, err = p.kmsClient.DisableKey(ctx, &kms.DisableKeyInput{KeyId: aws.String(id)})
		}
		if err != nil {
			return nil, p.classify(KindKey, provider.OpUpdate, err)
		}
	}

	resp, err := p.kmsClient.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(id)})
	if err != nil {
		return nil, p.classify(KindKey, provider.OpUpdate, err)
	}
	return map[string]any{
		"keyId": aws.ToString(resp.KeyMetadata.KeyId),
		"arn":   aws.ToString(resp.KeyMetadata.Arn),
	}, nil
}

func (p *Provider) deleteKey(ctx context.Context, id string) error {
	_, err := p.kmsClient.ScheduleKeyDeletion(ctx, &kms.ScheduleKeyDeletionInput{
		KeyId:               aws.String(id),
		PendingWindowInDays: aws.Int32(keyDeletionWindowDays),
	})
	if err != nil && !isNotFound(err) {
		return p.classify(KindKey, provider.OpDelete, err)
	}
	return nil
}
