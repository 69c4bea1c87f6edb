package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/landform-io/landform/internal/provider"
)

type VpcConfig struct {
	CidrBlock          string            `json:"cidrBlock"`
	EnableDnsHostnames bool              `json:"enableDnsHostnames"`
	Tags               map[string]string `json:"tags"`
}

type SubnetConfig struct {
	VpcID               string            `json:"vpcId"`
	CidrBlock           string            `json:"cidrBlock"`
	AvailabilityZone    string            `json:"availabilityZone"`
	MapPublicIpOnLaunch bool              `json:"mapPublicIpOnLaunch"`
	Tags                map[string]string `json:"tags"`
}

type SecurityGroupConfig struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	VpcID       string              `json:"vpcId"`
	Ingress     []SecurityGroupRule `json:"ingress"`
	Egress      []SecurityGroupRule `json:"egress"`
	Tags        map[string]string   `json:"tags"`
}

type SecurityGroupRule struct {
	FromPort   int      `json:"fromPort"`
	ToPort     int      `json:"toPort"`
	Protocol   string   `json:"protocol"`
	CidrBlocks []string `json:"cidrBlocks"`
}

func (p *Provider) createVpc(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg VpcConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, provider.NewError(KindVpc, provider.OpCreate, err)
	}

	resp, err := p.ec2Client.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock: aws.String(cfg.CidrBlock),
	})
	if err != nil {
		return "", nil, p.classify(KindVpc, provider.OpCreate, err)
	}
	vpcID := aws.ToString(resp.Vpc.VpcId)

	if cfg.EnableDnsHostnames {
		_, err = p.ec2Client.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
			VpcId:              aws.String(vpcID),
			EnableDnsHostnames: &types.AttributeBooleanValue{Value: aws.Bool(true)},
		})
		if err != nil {
			return "", nil, p.classify(KindVpc, provider.OpCreate, err)
		}
	}

	if err := p.tagEC2Resource(ctx, vpcID, cfg.Tags); err != nil {
		return "", nil, p.classify(KindVpc, provider.OpCreate, err)
	}

	return vpcID, map[string]any{
		"id":        vpcID,
		"cidrBlock": aws.ToString(resp.Vpc.CidrBlock),
	}, nil
}

func (p *Provider) updateVpc(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg VpcConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, provider.NewError(KindVpc, provider.OpUpdate, err)
	}

	_, err := p.ec2Client.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
		VpcId:              aws.String(id),
		EnableDnsHostnames: &types.AttributeBooleanValue{Value: aws.Bool(cfg.EnableDnsHostnames)},
	})
	if err != nil {
		return nil, p.classify(KindVpc, provider.OpUpdate, err)
	}

	if err := p.tagEC2Resource(ctx, id, cfg.Tags); err != nil {
		return nil, p.classify(KindVpc, provider.OpUpdate, err)
	}

	return map[string]any{
		"id":        id,
		"cidrBlock": cfg.CidrBlock,
	}, nil
}

func (p *Provider) deleteVpc(ctx context.Context, id string) error {
	_, err := p.ec2Client.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: aws.String(id)})
	if err != nil && !isNotFound(err) {
		return p.classify(KindVpc, provider.OpDelete, err)
	}
	return nil
}

func (p *Provider) createSubnet(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg SubnetConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, provider.NewError(KindSubnet, provider.OpCreate, err)
	}

	input := &ec2.CreateSubnetInput{
		VpcId:     aws.String(cfg.VpcID),
		CidrBlock: aws.String(cfg.CidrBlock),
	}
	if cfg.AvailabilityZone != "" {
		input.AvailabilityZone = aws.String(cfg.AvailabilityZone)
	}

	resp, err := p.ec2Client.CreateSubnet(ctx, input)
	if err != nil {
		return "", nil, p.classify(KindSubnet, provider.OpCreate, err)
	}
	subnetID := aws.ToString(resp.Subnet.SubnetId)

	if cfg.MapPublicIpOnLaunch {
		_, err = p.ec2Client.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
			SubnetId:            aws.String(subnetID),
			MapPublicIpOnLaunch: &types.AttributeBooleanValue{Value: aws.Bool(true)},
		})
		if err != nil {
			return "", nil, p.classify(KindSubnet, provider.OpCreate, err)
		}
	}

	if err := p.tagEC2Resource(ctx, subnetID, cfg.Tags); err != nil {
		return "", nil, p.classify(KindSubnet, provider.OpCreate, err)
	}

	return subnetID, map[string]any{
		"id":               subnetID,
		"vpcId":            aws.ToString(resp.Subnet.VpcId),
		"availabilityZone": aws.ToString(resp.Subnet.AvailabilityZone),
	}, nil
}

func (p *Provider) updateSubnet(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg SubnetConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, provider.NewError(KindSubnet, provider.OpUpdate, err)
	}

	_, err := p.ec2Client.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
		SubnetId:            aws.String(id),
		MapPublicIpOnLaunch: &types.AttributeBooleanValue{Value: aws.Bool(cfg.MapPublicIpOnLaunch)},
	})
	if err != nil {
		return nil, p.classify(KindSubnet, provider.OpUpdate, err)
	}

	if err := p.tagEC2Resource(ctx, id, cfg.Tags); err != nil {
		return nil, p.classify(KindSubnet, provider.OpUpdate, err)
	}

	return map[string]any{
		"id":               id,
		"vpcId":            cfg.VpcID,
		"availabilityZone": cfg.AvailabilityZone,
	}, nil
}

func (p *Provider) deleteSubnet(ctx context.Context, id string) error {
	_, err := p.ec2Client.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: aws.String(id)})
	if err != nil && !isNotFound(err) {
		return p.classify(KindSubnet, provider.OpDelete, err)
	}
	return nil
}

func (p *Provider) createSecurityGroup(ctx context.Context, attrs map[string]any) (string, map[string]any, error) {
	var cfg SecurityGroupConfig
	if err := decode(attrs, &cfg); err != nil {
		return "", nil, provider.NewError(KindSecurityGroup, provider.OpCreate, err)
	}

	input := &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(cfg.Name),
		Description: aws.String(cfg.Description),
	}
	if cfg.VpcID != "" {
		input.VpcId = aws.String(cfg.VpcID)
	}

	resp, err := p.ec2Client.CreateSecurityGroup(ctx, input)
	if err != nil {
		return "", nil, p.classify(KindSecurityGroup, provider.OpCreate, err)
	}
	groupID := aws.ToString(resp.GroupId)

	if len(cfg.Ingress) > 0 {
		_, err = p.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       aws.String(groupID),
			IpPermissions: toIPPermissions(cfg.Ingress),
		})
		if err != nil {
			return "", nil, p.classify(KindSecurityGroup, provider.OpCreate, err)
		}
	}
	if len(cfg.Egress) > 0 {
		_, err = p.ec2Client.AuthorizeSecurityGroupEgress(ctx, &ec2.AuthorizeSecurityGroupEgressInput{
			GroupId:       aws.String(groupID),
			IpPermissions: toIPPermissions(cfg.Egress),
		})
		if err != nil && !hasErrorCode(err, "InvalidPermission.Duplicate") {
			return "", nil, p.classify(KindSecurityGroup, provider.OpCreate, err)
		}
	}

	if err := p.tagEC2Resource(ctx, groupID, cfg.Tags); err != nil {
		return "", nil, p.classify(KindSecurityGroup, provider.OpCreate, err)
	}

	return groupID, map[string]any{
		"id":   groupID,
		"name": cfg.Name,
	}, nil
}

// updateSecurityGroup reconciles rules by revoking the current ingress
// permissions and authorizing the desired set. The default egress rule
// is only touched when the configuration declares egress rules.
func (p *Provider) updateSecurityGroup(ctx context.Context, id string, attrs map[string]any) (map[string]any, error) {
	var cfg SecurityGroupConfig
	if err := decode(attrs, &cfg); err != nil {
		return nil, provider.NewError(KindSecurityGroup, provider.OpUpdate, err)
	}

	desc, err := p.ec2Client.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		GroupIds: []string{id},
	})
	if err != nil {
		return nil, p.classify(KindSecurityGroup, provider.OpUpdate, err)
	}
	if len(desc.SecurityGroups) == 0 {
		return nil, provider.NewError(KindSecurityGroup, provider.OpUpdate,
			fmt.Errorf("security group %s no longer exists", id))
	}
	current := desc.SecurityGroups[0]

	if len(current.IpPermissions) > 0 {
		_, err = p.ec2Client.RevokeSecurityGroupIngress(ctx, &ec2.RevokeSecurityGroupIngressInput{
			GroupId:       aws.String(id),
			IpPermissions: current.IpPermissions,
		})
		if err != nil {
			return nil, p.classify(KindSecurityGroup, provider.OpUpdate, err)
		}
	}
	if len(cfg.Ingress) > 0 {
		_, err = p.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       aws.String(id),
			IpPermissions: toIPPermissions(cfg.Ingress),
		})
		if err != nil {
			return nil, p.classify(KindSecurityGroup, provider.OpUpdate, err)
		}
	}

	if len(cfg.Egress) > 0 {
		if len(current.IpPermissionsEgress) > 0 {
			_, err = p.ec2Client.RevokeSecurityGroupEgress(ctx, &ec2.RevokeSecurityGroupEgressInput{
				GroupId:       aws.String(id),
				IpPermissions: current.IpPermissionsEgress,
			})
			if err != nil {
				return nil, p.classify(KindSecurityGroup, provider.OpUpdate, err)
			}
		}
		_, err = p.ec2Client.AuthorizeSecurityGroupEgress(ctx, &ec2.AuthorizeSecurityGroupEgressInput{
			GroupId:       aws.String(id),
			IpPermissions: toIPPermissions(cfg.Egress),
		})
		if err != nil {
			return nil, p.classify(KindSecurityGroup, provider.OpUpdate, err)
		}
	}

	if err := p.tagEC2Resource(ctx, id, cfg.Tags); err != nil {
		return nil, p.classify(KindSecurityGroup, provider.OpUpdate, err)
	}

	return map[string]any{
		"id":   id,
		"name": cfg.Name,
	}, nil
}

func (p *Provider) deleteSecurityGroup(ctx context.Context, id string) error {
	_, err := p.ec2Client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: aws.String(id)})
	if err != nil && !isNotFound(err) {
		return p.classify(KindSecurityGroup, provider.OpDelete, err)
	}
	return nil
}

func (p *Provider) tagEC2Resource(ctx context.Context, id string, tags map[string]string) error {
	if len(tags) == 0 {
		return nil
	}
	ec2Tags := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		ec2Tags = append(ec2Tags, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	_, err := p.ec2Client.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{id},
		Tags:      ec2Tags,
	})
	return err
}

func toIPPermissions(rules []SecurityGroupRule) []types.IpPermission {
	perms := make([]types.IpPermission, 0, len(rules))
	for _, rule := range rules {
		ranges := make([]types.IpRange, 0, len(rule.CidrBlocks))
		for _, cidr := range rule.CidrBlocks {
			ranges = append(ranges, types.IpRange{CidrIp: aws.String(cidr)})
		}
		perms = append(perms, types.IpPermission{
			IpProtocol: aws.String(rule.Protocol),
			FromPort:   aws.Int32(int32(rule.FromPort)),
			ToPort:     aws.Int32(int32(rule.ToPort)),
			IpRanges:   ranges,
		})
	}
	return perms
}
