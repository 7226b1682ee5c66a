package ec2

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

type modifyAttributeAPI interface {
	ModifyInstanceAttribute(ctx context.Context, params *ec2.ModifyInstanceAttributeInput, optFns ...func(*ec2.Options)) (*ec2.ModifyInstanceAttributeOutput, error)
}

// ProtectionController toggles the DisableApiTermination attribute of an
// instance.
type ProtectionController struct {
	api modifyAttributeAPI
}

func NewProtectionController(ctx context.Context, region string) (*ProtectionController, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &ProtectionController{api: ec2.NewFromConfig(cfg)}, nil
}

func (p *ProtectionController) SetTerminationProtection(ctx context.Context, instanceID string, enabled bool) error {
	_, err := p.api.ModifyInstanceAttribute(ctx, &ec2.ModifyInstanceAttributeInput{
		InstanceId:            aws.String(instanceID),
		DisableApiTermination: &types.AttributeBooleanValue{Value: aws.Bool(enabled)},
	})
	if err != nil {
		return fmt.Errorf("modify instance attribute: %w", err)
	}
	return nil
}

// NoopController stands in when the worker runs outside EC2.
type NoopController struct{}

func (NoopController) SetTerminationProtection(context.Context, string, bool) error {
	return nil
}
