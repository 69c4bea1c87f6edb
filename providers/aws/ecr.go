package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/types"

	"github.com/landform-io/landform/internal/provider"
)

type RepositoryConfig struct {
	RepositoryName     string            `json:"repositoryName"`
	ImageTagMutability string            `json:"imageTagMutability"`
	ScanOnPush         bool              `json:"scanOnPush"`
	Tags               map[string]string `json:"tags"`
}

func (p *Provider) createRepository(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg RepositoryConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, provider.NewError(KindRepository, provider.OpCreate, err)
	}

	input := &ecr.CreateRepositoryInput{
		RepositoryName: aws.String(cfg.RepositoryName),
		ImageScanningConfiguration: &types.ImageScanningConfiguration{
			ScanOnPush: cfg.ScanOnPush,
		},
	}
	if cfg.ImageTagMutability != "" {
		input.ImageTagMutability = types.ImageTagMutability(cfg.ImageTagMutability)
	}
	if len(cfg.Tags) > 0 {
		tags := make([]types.Tag, 0, len(cfg.Tags))
		for k, v := range cfg.Tags {
			tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(v)})
		}
		input.Tags = tags
	}

	resp, err := p.ecrClient.CreateRepository(ctx, input)
	if err != nil {
		return "", nil, p.classify(KindRepository, provider.OpCreate, err)
	}

	name := aws.ToString(resp.Repository.RepositoryName)
	return name, map[string]any{
		"repositoryName": name,
		"arn":            aws.ToString(resp.Repository.RepositoryArn),
		"repositoryUri":  aws.ToString(resp.Repository.RepositoryUri),
	}, nil
}

func (p *Provider) updateRepository(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg RepositoryConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, provider.NewError(KindRepository, provider.OpUpdate, err)
	}

	if cfg.ImageTagMutability != "" {
		_, err := p.ecrClient.PutImageTagMutability(ctx, &ecr.PutImageTagMutabilityInput{
			RepositoryName:     aws.String(id),
			ImageTagMutability: types.ImageTagMutability(cfg.ImageTagMutability),
		})
		if err != nil {
			return nil, p.classify(KindRepository, provider.OpUpdate, err)
		}
	}

	_, err := p.ecrClient.PutImageScanningConfiguration(ctx, &ecr.PutImageScanningConfigurationInput{
		RepositoryName: aws.String(id),
		ImageScanningConfiguration: &types.ImageScanningConfiguration{
			ScanOnPush: cfg.ScanOnPush,
		},
	})
	if err != nil {
		return nil, p.classify(KindRepository, provider.OpUpdate, err)
	}

	desc, err := p.ecrClient.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{id},
	})
	if err != nil || len(desc.Repositories) == 0 {
		return map[string]any{"repositoryName": id}, nil
	}
	repo := desc.Repositories[0]
	return map[string]any{
		"repositoryName": aws.ToString(repo.RepositoryName),
		"arn":            aws.ToString(repo.RepositoryArn),
		"repositoryUri":  aws.ToString(repo.RepositoryUri),
	}, nil
}

// deleteRepository force-deletes so repositories holding images can
// still be removed.
func (p *Provider) deleteRepository(ctx context.Context, id string) error {
	_, err := p.ecrClient.DeleteRepository(ctx, &ecr.DeleteRepositoryInput{
		RepositoryName: aws.String(id),
		Force:          true,
	})
	if err != nil && !isNotFound(err) {
		return p.classify(KindRepository, provider.OpDelete, err)
	}
	return nil
}
