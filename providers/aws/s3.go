package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/landform-io/landform/internal/provider"
)

type BucketConfig struct {
	Bucket     string            `json:"bucket"`
	Versioning bool              `json:"versioning"`
	Tags       map[string]string `json:"tags"`
}

// createBucket treats BucketAlreadyOwnedByYou as success. Bucket names
// are globally unique, so re-creating a bucket we already own is the
// converged state, not a conflict.
func (p *Provider) createBucket(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg BucketConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, provider.NewError(KindBucket, provider.OpCreate, err)
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(cfg.Bucket),
	}
	// us-east-1 rejects an explicit location constraint.
	if p.region != "" && p.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(p.region),
		}
	}

	if _, err := p.s3Client.CreateBucket(ctx, input); err != nil {
		if !hasErrorCode(err, "BucketAlreadyOwnedByYou") {
			return "", nil, p.classify(KindBucket, provider.OpCreate, err)
		}
	}

	if cfg.Versioning {
		if err := p.putBucketVersioning(ctx, cfg.Bucket, true); err != nil {
			return "", nil, p.classify(KindBucket, provider.OpCreate, err)
		}
	}
	if err := p.putBucketTags(ctx, cfg.Bucket, cfg.Tags); err != nil {
		return "", nil, p.classify(KindBucket, provider.OpCreate, err)
	}

	return cfg.Bucket, bucketOutputs(cfg.Bucket), nil
}

func (p *Provider) updateBucket(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg BucketConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, provider.NewError(KindBucket, provider.OpUpdate, err)
	}

	if err := p.putBucketVersioning(ctx, id, cfg.Versioning); err != nil {
		return nil, p.classify(KindBucket, provider.OpUpdate, err)
	}
	if err := p.putBucketTags(ctx, id, cfg.Tags); err != nil {
		return nil, p.classify(KindBucket, provider.OpUpdate, err)
	}

	return bucketOutputs(id), nil
}

func (p *Provider) deleteBucket(ctx context.Context, id string) error {
	_, err := p.s3Client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(id)})
	if err != nil && !isNotFound(err) {
		return p.classify(KindBucket, provider.OpDelete, err)
	}
	return nil
}

func (p *Provider) putBucketVersioning(ctx context.Context, bucket string, enabled bool) error {
	status := types.BucketVersioningStatusSuspended
	if enabled {
		status = types.BucketVersioningStatusEnabled
	}
	_, err := p.s3Client.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket: aws.String(bucket),
		VersioningConfiguration: &types.VersioningConfiguration{
			Status: status,
		},
	})
	return err
}

func (p *Provider) putBucketTags(ctx context.Context, bucket string, tags map[string]string) error {
	if len(tags) == 0 {
		return nil
	}
	tagSet := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		tagSet = append(tagSet, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	_, err := p.s3Client.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
		Bucket:  aws.String(bucket),
		Tagging: &types.Tagging{TagSet: tagSet},
	})
	return err
}

func bucketOutputs(name string) map[string]any {
	return map[string]any{
		"name": name,
		"arn":  fmt.Sprintf("arn:aws:s3:::%s", name),
	}
}
