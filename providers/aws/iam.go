package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/landform-io/landform/internal/provider"
)

type RoleConfig struct {
	Name             string            `json:"name"`
	AssumeRolePolicy string            `json:"assumeRolePolicy"`
	Description      string            `json:"description"`
	Tags             map[string]string `json:"tags"`
}

type PolicyAttachmentConfig struct {
	Role      string `json:"role"`
	PolicyArn string `json:"policyArn"`
}

func (p *Provider) createRole(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg RoleConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, provider.NewError(KindRole, provider.OpCreate, err)
	}

	input := &iam.CreateRoleInput{
		RoleName:                 aws.String(cfg.Name),
		AssumeRolePolicyDocument: aws.String(cfg.AssumeRolePolicy),
	}
	if cfg.Description != "" {
		input.Description = aws.String(cfg.Description)
	}
	if len(cfg.Tags) > 0 {
		input.Tags = iamTags(cfg.Tags)
	}

	resp, err := p.iamClient.CreateRole(ctx, input)
	if err != nil {
		return "", nil, p.classify(KindRole, provider.OpCreate, err)
	}

	name := aws.ToString(resp.Role.RoleName)
	return name, map[string]any{
		"name": name,
		"arn":  aws.ToString(resp.Role.Arn),
	}, nil
}

func (p *Provider) updateRole(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg RoleConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, provider.NewError(KindRole, provider.OpUpdate, err)
	}

	if cfg.AssumeRolePolicy != "" {
		_, err := p.iamClient.UpdateAssumeRolePolicy(ctx, &iam.UpdateAssumeRolePolicyInput{
			RoleName:       aws.String(id),
			PolicyDocument: aws.String(cfg.AssumeRolePolicy),
		})
		if err != nil {
			return nil, p.classify(KindRole, provider.OpUpdate, err)
		}
	}
	if cfg.Description != "" {
		_, err := p.iamClient.UpdateRole(ctx, &iam.UpdateRoleInput{
			RoleName:    aws.String(id),
			Description: aws.String(cfg.Description),
		})
		if err != nil {
			return nil, p.classify(KindRole, provider.OpUpdate, err)
		}
	}
	if len(cfg.Tags) > 0 {
		_, err := p.iamClient.TagRole(ctx, &iam.TagRoleInput{
			RoleName: aws.String(id),
			Tags:     iamTags(cfg.Tags),
		})
		if err != nil {
			return nil, p.classify(KindRole, provider.OpUpdate, err)
		}
	}

	resp, err := p.iamClient.GetRole(ctx, &iam.GetRoleInput{RoleName: aws.String(id)})
	if err != nil {
		return nil, p.classify(KindRole, provider.OpUpdate, err)
	}
	return map[string]any{
		"name": aws.ToString(resp.Role.RoleName),
		"arn":  aws.ToString(resp.Role.Arn),
	}, nil
}

func (p *Provider) deleteRole(ctx context.Context, id string) error {
	_, err := p.iamClient.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: aws.String(id)})
	if err != nil && !isNotFound(err) {
		return p.classify(KindRole, provider.OpDelete, err)
	}
	return nil
}

// A policy attachment has no identifier of its own, so its provider ID
// is "role/policyArn". Role names cannot contain a slash, which keeps
// the split unambiguous even though policy ARNs contain several.
func (p *Provider) createPolicyAttachment(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg PolicyAttachmentConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, provider.NewError(KindPolicyAttachment, provider.OpCreate, err)
	}

	_, err := p.iamClient.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  aws.String(cfg.Role),
		PolicyArn: aws.String(cfg.PolicyArn),
	})
	if err != nil {
		return "", nil, p.classify(KindPolicyAttachment, provider.OpCreate, err)
	}

	id := cfg.Role + "/" + cfg.PolicyArn
	return id, map[string]any{
		"role":      cfg.Role,
		"policyArn": cfg.PolicyArn,
	}, nil
}

// updatePolicyAttachment re-attaches, which is idempotent. Both
// attributes force replacement, so this only ever sees a no-op.
func (p *Provider) updatePolicyAttachment(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg PolicyAttachmentConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, provider.NewError(KindPolicyAttachment, provider.OpUpdate, err)
	}

	_, err := p.iamClient.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  aws.String(cfg.Role),
		PolicyArn: aws.String(cfg.PolicyArn),
	})
	if err != nil {
		return nil, p.classify(KindPolicyAttachment, provider.OpUpdate, err)
	}

	return map[string]any{
		"role":      cfg.Role,
		"policyArn": cfg.PolicyArn,
	}, nil
}

func (p *Provider) deletePolicyAttachment(ctx context.Context, id string) error {
	role, policyArn, ok := strings.Cut(id, "/")
	if !ok {
		return provider.NewError(KindPolicyAttachment, provider.OpDelete,
			fmt.Errorf("malformed attachment id %q", id))
	}

	_, err := p.iamClient.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
		RoleName:  aws.String(role),
		PolicyArn: aws.String(policyArn),
	})
	if err != nil && !isNotFound(err) {
		return p.classify(KindPolicyAttachment, provider.OpDelete, err)
	}
	return nil
}

func iamTags(tags map[string]string) []types.Tag {
	out := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return out
}
