// Package aws implements resource kinds backed by AWS service APIs.
//
// Each kind maps to a single AWS resource. The provider keeps one SDK
// client per service, created lazily from the ambient credential chain
// on first use. Provider IDs are the native AWS identifiers (VPC IDs,
// bucket names, ARNs), so state entries survive across runs and can be
// deleted without re-reading the original configuration.
package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticache"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/smithy-go"

	"github.com/landform-io/landform/internal/provider"
)

const (
	KindVpc              = "aws:EC2.Vpc"
	KindSubnet           = "aws:EC2.Subnet"
	KindSecurityGroup    = "aws:EC2.SecurityGroup"
	KindBucket           = "aws:S3.Bucket"
	KindRepository       = "aws:ECR.Repository"
	KindEKSCluster       = "aws:EKS.Cluster"
	KindCacheCluster     = "aws:ElastiCache.Cluster"
	KindTable            = "aws:DynamoDB.Table"
	KindRole             = "aws:IAM.Role"
	KindPolicyAttachment = "aws:IAM.PolicyAttachment"
	KindKey              = "aws:KMS.Key"
	KindSecret           = "aws:SecretsManager.Secret"
	KindAlarm            = "aws:CloudWatch.Alarm"
	KindLogGroup         = "aws:CloudWatch.LogGroup"
	KindTopic            = "aws:SNS.Topic"
)

var _ provider.ResourceProvider = (*Provider)(nil)

type Provider struct {
	region string

	mu                   sync.Mutex
	ec2Client            *ec2.Client
	s3Client             *s3.Client
	ecrClient            *ecr.Client
	eksClient            *eks.Client
	elasticacheClient    *elasticache.Client
	dynamodbClient       *dynamodb.Client
	iamClient            *iam.Client
	kmsClient            *kms.Client
	secretsmanagerClient *secretsmanager.Client
	cloudwatchClient     *cloudwatch.Client
	cloudwatchlogsClient *cloudwatchlogs.Client
	snsClient            *sns.Client
}

type Option func(*Provider)

// WithRegion pins the provider to a region instead of resolving one
// from the environment or shared config.
func WithRegion(region string) Option {
	return func(p *Provider) { p.region = region }
}

func New(opts ...Option) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) ensureClients(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ec2Client != nil {
		return nil
	}

	var loadOpts []func(*config.LoadOptions) error
	if p.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(p.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	p.region = cfg.Region

	p.ec2Client = ec2.NewFromConfig(cfg)
	p.s3Client = s3.NewFromConfig(cfg)
	p.ecrClient = ecr.NewFromConfig(cfg)
	p.eksClient = eks.NewFromConfig(cfg)
	p.elasticacheClient = elasticache.NewFromConfig(cfg)
	p.dynamodbClient = dynamodb.NewFromConfig(cfg)
	p.iamClient = iam.NewFromConfig(cfg)
	p.kmsClient = kms.NewFromConfig(cfg)
	p.secretsmanagerClient = secretsmanager.NewFromConfig(cfg)
	p.cloudwatchClient = cloudwatch.NewFromConfig(cfg)
	p.cloudwatchlogsClient = cloudwatchlogs.NewFromConfig(cfg)
	p.snsClient = sns.NewFromConfig(cfg)

	return nil
}

func (p *Provider) Schema(kind string) (provider.Schema, error) {
	switch kind {
	case KindVpc:
		return provider.Schema{
			Kind:      kind,
			Required:  []string{"cidrBlock"},
			Immutable: []string{"cidrBlock"},
		}, nil
	case KindSubnet:
		return provider.Schema{
			Kind:      kind,
			Required:  []string{"cidrBlock", "vpcId"},
			Immutable: []string{"availabilityZone", "cidrBlock", "vpcId"},
		}, nil
	case KindSecurityGroup:
		return provider.Schema{
			Kind:      kind,
			Required:  []string{"name", "vpcId"},
			Immutable: []string{"description", "name", "vpcId"},
		}, nil
	case KindBucket:
		return provider.Schema{
			Kind:      kind,
			Required:  []string{"bucket"},
			Immutable: []string{"bucket"},
		}, nil
	case KindRepository:
		return provider.Schema{
			Kind:      kind,
			Required:  []string{"repositoryName"},
			Immutable: []string{"repositoryName"},
		}, nil
	case KindEKSCluster:
		return provider.Schema{
			Kind:      kind,
			Required:  []string{"clusterName", "roleArn", "subnetIds"},
			Immutable: []string{"clusterName", "roleArn", "securityGroupIds", "subnetIds"},
		}, nil
	case KindCacheCluster:
		return provider.Schema{
			Kind:      kind,
			Required:  []string{"clusterId", "engine", "nodeType"},
			Immutable: []string{"clusterId", "engine", "port", "subnetGroupName"},
		}, nil
	case KindTable:
		return provider.Schema{
			Kind:      kind,
			Required:  []string{"attributes", "keySchema", "tableName"},
			Immutable: []string{"attributes", "keySchema", "tableName"},
		}, nil
	case KindRole:
		return provider.Schema{
			Kind:      kind,
			Required:  []string{"assumeRolePolicy", "name"},
			Immutable: []string{"name"},
		}, nil
	case KindPolicyAttachment:
		return provider.Schema{
			Kind:      kind,
			Required:  []string{"policyArn", "role"},
			Immutable: []string{"policyArn", "role"},
		}, nil
	case KindKey:
		return provider.Schema{
			Kind:      kind,
			Immutable: []string{"keyUsage"},
		}, nil
	case KindSecret:
		return provider.Schema{
			Kind:      kind,
			Required:  []string{"name"},
			Immutable: []string{"name"},
		}, nil
	case KindAlarm:
		return provider.Schema{
			Kind:      kind,
			Required:  []string{"alarmName", "metricName", "namespace"},
			Immutable: []string{"alarmName"},
		}, nil
	case KindLogGroup:
		return provider.Schema{
			Kind:      kind,
			Required:  []string{"logGroupName"},
			Immutable: []string{"logGroupName"},
		}, nil
	case KindTopic:
		return provider.Schema{
			Kind:      kind,
			Required:  []string{"name"},
			Immutable: []string{"fifoTopic", "name"},
		}, nil
	}
	return provider.Schema{}, fmt.Errorf("unknown kind %q", kind)
}

func (p *Provider) Create(ctx context.Context, kind string, attrs map[string]any) (string, map[string]any, error) {
	if err := p.ensureClients(ctx); err != nil {
		return "", nil, provider.NewRetryableError(kind, provider.OpCreate, err)
	}

	switch kind {
	case KindVpc:
		return p.createVpc(ctx, attrs)
	case KindSubnet:
		return p.createSubnet(ctx, attrs)
	case KindSecurityGroup:
		return p.createSecurityGroup(ctx, attrs)
	case KindBucket:
		return p.createBucket(ctx, attrs)
	case KindRepository:
		return p.createRepository(ctx, attrs)
	case KindEKSCluster:
		return p.createEKSCluster(ctx, attrs)
	case KindCacheCluster:
		return p.createCacheCluster(ctx, attrs)
	case KindTable:
		return p.createTable(ctx, attrs)
	case KindRole:
		return p.createRole(ctx, attrs)
	case KindPolicyAttachment:
		return p.createPolicyAttachment(ctx, attrs)
	case KindKey:
		return p.createKey(ctx, attrs)
	case KindSecret:
		return p.createSecret(ctx, attrs)
	case KindAlarm:
		return p.putAlarm(ctx, attrs)
	case KindLogGroup:
		return p.createLogGroup(ctx, attrs)
	case KindTopic:
		return p.createTopic(ctx, attrs)
	}
	return "", nil, provider.NewError(kind, provider.OpCreate, fmt.Errorf("unknown kind %q", kind))
}

func (p *Provider) Update(ctx context.Context, kind, id string, attrs map[string]any) (map[string]any, error) {
	if err := p.ensureClients(ctx); err != nil {
		return nil, provider.NewRetryableError(kind, provider.OpUpdate, err)
	}

	switch kind {
	case KindVpc:
		return p.updateVpc(ctx, id, attrs)
	case KindSubnet:
		return p.updateSubnet(ctx, id, attrs)
	case KindSecurityGroup:
		return p.updateSecurityGroup(ctx, id, attrs)
	case KindBucket:
		return p.updateBucket(ctx, id, attrs)
	case KindRepository:
		return p.updateRepository(ctx, id, attrs)
	case KindEKSCluster:
		return p.updateEKSCluster(ctx, id, attrs)
	case KindCacheCluster:
		return p.updateCacheCluster(ctx, id, attrs)
	case KindTable:
		return p.updateTable(ctx, id, attrs)
	case KindRole:
		return p.updateRole(ctx, id, attrs)
	case KindPolicyAttachment:
		return p.updatePolicyAttachment(ctx, id, attrs)
	case KindKey:
		return p.updateKey(ctx, id, attrs)
	case KindSecret:
		return p.updateSecret(ctx, id, attrs)
	case KindAlarm:
		_, outputs, err := p.putAlarm(ctx, attrs)
		return outputs, err
	case KindLogGroup:
		return p.updateLogGroup(ctx, id, attrs)
	case KindTopic:
		return p.updateTopic(ctx, id, attrs)
	}
	return nil, provider.NewError(kind, provider.OpUpdate, fmt.Errorf("unknown kind %q", kind))
}

func (p *Provider) Delete(ctx context.Context, kind, id string) error {
	if err := p.ensureClients(ctx); err != nil {
		return provider.NewRetryableError(kind, provider.OpDelete, err)
	}

	switch kind {
	case KindVpc:
		return p.deleteVpc(ctx, id)
	case KindSubnet:
		return p.deleteSubnet(ctx, id)
	case KindSecurityGroup:
		return p.deleteSecurityGroup(ctx, id)
	case KindBucket:
		return p.deleteBucket(ctx, id)
	case KindRepository:
		return p.deleteRepository(ctx, id)
	case KindEKSCluster:
		return p.deleteEKSCluster(ctx, id)
	case KindCacheCluster:
		return p.deleteCacheCluster(ctx, id)
	case KindTable:
		return p.deleteTable(ctx, id)
	case KindRole:
		return p.deleteRole(ctx, id)
	case KindPolicyAttachment:
		return p.deletePolicyAttachment(ctx, id)
	case KindKey:
		return p.deleteKey(ctx, id)
	case KindSecret:
		return p.deleteSecret(ctx, id)
	case KindAlarm:
		return p.deleteAlarm(ctx, id)
	case KindLogGroup:
		return p.deleteLogGroup(ctx, id)
	case KindTopic:
		return p.deleteTopic(ctx, id)
	}
	return provider.NewError(kind, provider.OpDelete, fmt.Errorf("unknown kind %q", kind))
}

// classify wraps an SDK error, marking throttle and availability
// failures as retryable so the executor backs off instead of failing
// the resource outright.
func (p *Provider) classify(kind string, op provider.Op, err error) error {
	if isThrottle(err) {
		return provider.NewRetryableError(kind, op, err)
	}
	return provider.NewError(kind, op, err)
}

func isThrottle(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.ErrorCode() {
	case "Throttling", "ThrottlingException", "RequestLimitExceeded",
		"TooManyRequestsException", "RequestThrottled", "SlowDown",
		"ServiceUnavailable", "InternalError", "InternalFailure":
		return true
	}
	return false
}

// isNotFound reports whether err carries one of the per-service "no
// such resource" codes. Deletes treat these as success so removing an
// already-gone resource converges.
func isNotFound(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	switch ae.ErrorCode() {
	case "NotFound", "NotFoundException", "ResourceNotFoundException",
		"NoSuchEntity", "NoSuchBucket", "RepositoryNotFoundException",
		"CacheClusterNotFound", "CacheClusterNotFoundFault",
		"InvalidVpcID.NotFound", "InvalidSubnetID.NotFound",
		"InvalidGroup.NotFound":
		return true
	}
	return false
}

func hasErrorCode(err error, code string) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.ErrorCode() == code
}

// decode round-trips loosely typed attributes into a service config
// struct via JSON.
func decode(attrs map[string]any, out any) error {
	raw, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encoding attributes: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding attributes: %w", err)
	}
	return nil
}
