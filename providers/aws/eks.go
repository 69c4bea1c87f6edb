package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/eks/types"

	"github.com/landform-io/landform/internal/provider"
)

type EKSClusterConfig struct {
	ClusterName           string            `json:"clusterName"`
	RoleArn               string            `json:"roleArn"`
	Version               string            `json:"version"`
	SubnetIds             []string          `json:"subnetIds"`
	SecurityGroupIds      []string          `json:"securityGroupIds"`
	EndpointPublicAccess  *bool             `json:"endpointPublicAccess"`
	EndpointPrivateAccess *bool             `json:"endpointPrivateAccess"`
	Tags                  map[string]string `json:"tags"`
}

func (p *Provider) createEKSCluster(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg EKSClusterConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, provider.NewError(KindEKSCluster, provider.OpCreate, err)
	}

	input := &eks.CreateClusterInput{
		Name:    aws.String(cfg.ClusterName),
		RoleArn: aws.String(cfg.RoleArn),
		ResourcesVpcConfig: &types.VpcConfigRequest{
			SubnetIds:             cfg.SubnetIds,
			SecurityGroupIds:      cfg.SecurityGroupIds,
			EndpointPublicAccess:  cfg.EndpointPublicAccess,
			EndpointPrivateAccess: cfg.EndpointPrivateAccess,
		},
		Tags: cfg.Tags,
	}
	if cfg.Version != "" {
		input.Version = aws.String(cfg.Version)
	}

	resp, err := p.eksClient.CreateCluster(ctx, input)
	if err != nil {
		return "", nil, p.classify(KindEKSCluster, provider.OpCreate, err)
	}

	name := aws.ToString(resp.Cluster.Name)
	return name, eksClusterOutputs(resp.Cluster), nil
}

// updateEKSCluster describes the cluster first and only issues update
// operations for fields that actually differ. EKS rejects update calls
// that change nothing.
func (p *Provider) updateEKSCluster(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg EKSClusterConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, provider.NewError(KindEKSCluster, provider.OpUpdate, err)
	}

	desc, err := p.eksClient.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(id)})
	if err != nil {
		return nil, p.classify(KindEKSCluster, provider.OpUpdate, err)
	}
	cluster := desc.Cluster

	if cfg.Version != "" && cfg.Version != aws.ToString(cluster.Version) {
		_, err = p.eksClient.UpdateClusterVersion(ctx, &eks.UpdateClusterVersionInput{
			Name:    aws.String(id),
			Version: aws.String(cfg.Version),
		})
		if err != nil {
			return nil, p.classify(KindEKSCluster, provider.OpUpdate, err)
		}
	}

	if accessChanged(cfg, cluster.ResourcesVpcConfig) {
		_, err = p.eksClient.UpdateClusterConfig(ctx, &eks.UpdateClusterConfigInput{
			Name: aws.String(id),
			ResourcesVpcConfig: &types.VpcConfigRequest{
				EndpointPublicAccess:  cfg.EndpointPublicAccess,
				EndpointPrivateAccess: cfg.EndpointPrivateAccess,
			},
		})
		if err != nil {
			return nil, p.classify(KindEKSCluster, provider.OpUpdate, err)
		}
	}

	if len(cfg.Tags) > 0 && cluster.Arn != nil {
		_, err = p.eksClient.TagResource(ctx, &eks.TagResourceInput{
			ResourceArn: cluster.Arn,
			Tags:        cfg.Tags,
		})
		if err != nil {
			return nil, p.classify(KindEKSCluster, provider.OpUpdate, err)
		}
	}

	return eksClusterOutputs(cluster), nil
}

func (p *Provider) deleteEKSCluster(ctx context.Context, id string) error {
	_, err := p.eksClient.DeleteCluster(ctx, &eks.DeleteClusterInput{Name: aws.String(id)})
	if err != nil && !isNotFound(err) {
		return p.classify(KindEKSCluster, provider.OpDelete, err)
	}
	return nil
}

func accessChanged(cfg EKSClusterConfig, current *types.VpcConfigResponse) bool {
	if current == nil {
		return cfg.EndpointPublicAccess != nil || cfg.EndpointPrivateAccess != nil
	}
	if cfg.EndpointPublicAccess != nil && *cfg.EndpointPublicAccess != current.EndpointPublicAccess {
		return true
	}
	if cfg.EndpointPrivateAccess != nil && *cfg.EndpointPrivateAccess != current.EndpointPrivateAccess {
		return true
	}
	return false
}

// eksClusterOutputs omits the endpoint while the control plane is still
// provisioning; a later refresh or update fills it in.
func eksClusterOutputs(cluster *types.Cluster) map[string]any {
	outputs := map[string]any{
		"name": aws.ToString(cluster.Name),
		"arn":  aws.ToString(cluster.Arn),
	}
	if cluster.Endpoint != nil {
		outputs["endpoint"] = aws.ToString(cluster.Endpoint)
	}
	if cluster.Version != nil {
		outputs["version"] = aws.ToString(cluster.Version)
	}
	if cluster.CertificateAuthority != nil && cluster.CertificateAuthority.Data != nil {
		outputs["certificateAuthority"] = aws.ToString(cluster.CertificateAuthority.Data)
	}
	return outputs
}
