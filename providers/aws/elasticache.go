package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/aws/aws-sdk-go-v2/service/elasticache/types"

	"github.com/landform-io/landform/internal/provider"
)

type CacheClusterConfig struct {
	ClusterID        string            `json:"clusterId"`
	Engine           string            `json:"engine"`
	NodeType         string            `json:"nodeType"`
	NumCacheNodes    int32             `json:"numCacheNodes"`
	Port             int32             `json:"port"`
	SubnetGroupName  string            `json:"subnetGroupName"`
	SecurityGroupIds []string          `json:"securityGroupIds"`
	EngineVersion    string            `json:"engineVersion"`
	Tags             map[string]string `json:"tags"`
}

func (p *Provider) createCacheCluster(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg CacheClusterConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, provider.NewError(KindCacheCluster, provider.OpCreate, err)
	}
	if cfg.NumCacheNodes == 0 {
		cfg.NumCacheNodes = 1
	}

	input := &elasticache.CreateCacheClusterInput{
		CacheClusterId: aws.String(cfg.ClusterID),
		Engine:         aws.String(cfg.Engine),
		CacheNodeType:  aws.String(cfg.NodeType),
		NumCacheNodes:  aws.Int32(cfg.NumCacheNodes),
	}
	if cfg.Port > 0 {
		input.Port = aws.Int32(cfg.Port)
	}
	if cfg.SubnetGroupName != "" {
		input.CacheSubnetGroupName = aws.String(cfg.SubnetGroupName)
	}
	if len(cfg.SecurityGroupIds) > 0 {
		input.SecurityGroupIds = cfg.SecurityGroupIds
	}
	if cfg.EngineVersion != "" {
		input.EngineVersion = aws.String(cfg.EngineVersion)
	}
	if len(cfg.Tags) > 0 {
		tags := make([]types.Tag, 0, len(cfg.Tags))
		for k, v := range cfg.Tags {
			tags = append(tags, types.Tag{Key: aws.String(k), Value: aws.String(v)})
		}
		input.Tags = tags
	}

	resp, err := p.elasticacheClient.CreateCacheCluster(ctx, input)
	if err != nil {
		return "", nil, p.classify(KindCacheCluster, provider.OpCreate, err)
	}

	id := aws.ToString(resp.CacheCluster.CacheClusterId)
	return id, cacheClusterOutputs(resp.CacheCluster), nil
}

func (p *Provider) updateCacheCluster(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg CacheClusterConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, provider.NewError(KindCacheCluster, provider.OpUpdate, err)
	}

	input := &elasticache.ModifyCacheClusterInput{
		CacheClusterId:   aws.String(id),
		ApplyImmediately: aws.Bool(true),
	}
	if cfg.NodeType != "" {
		input.CacheNodeType = aws.String(cfg.NodeType)
	}
	if cfg.NumCacheNodes > 0 {
		input.NumCacheNodes = aws.Int32(cfg.NumCacheNodes)
	}
	if cfg.EngineVersion != "" {
		input.EngineVersion = aws.String(cfg.EngineVersion)
	}
	if len(cfg.SecurityGroupIds) > 0 {
		input.SecurityGroupIds = cfg.SecurityGroupIds
	}

	resp, err := p.elasticacheClient.ModifyCacheCluster(ctx, input)
	if err != nil {
		return nil, p.classify(KindCacheCluster, provider.OpUpdate, err)
	}

	return cacheClusterOutputs(resp.CacheCluster), nil
}

func (p *Provider) deleteCacheCluster(ctx context.Context, id string) error {
	_, err := p.elasticacheClient.DeleteCacheCluster(ctx, &elasticache.DeleteCacheClusterInput{
		CacheClusterId: aws.String(id),
	})
	if err != nil && !isNotFound(err) {
		return p.classify(KindCacheCluster, provider.OpDelete, err)
	}
	return nil
}

// cacheClusterOutputs includes the configuration endpoint once the
// cluster has finished provisioning.
func cacheClusterOutputs(cluster *types.CacheCluster) map[string]any {
	outputs := map[string]any{
		"clusterId": aws.ToString(cluster.CacheClusterId),
	}
	if cluster.ARN != nil {
		outputs["arn"] = aws.ToString(cluster.ARN)
	}
	if cluster.ConfigurationEndpoint != nil && cluster.ConfigurationEndpoint.Address != nil {
		outputs["endpoint"] = aws.ToString(cluster.ConfigurationEndpoint.Address)
	}
	return outputs
}
