package ec2

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/fiapx/fiapx-detection-worker/internal/domain/port"
)

type identityAPI interface {
	GetInstanceIdentityDocument(ctx context.Context, params *imds.GetInstanceIdentityDocumentInput, optFns ...func(*imds.Options)) (*imds.GetInstanceIdentityDocumentOutput, error)
}

// MetadataClient reads the instance identity document from the EC2
// metadata service, with IMDSv2 session tokens.
type MetadataClient struct {
	api identityAPI
}

// NewMetadataClient talks to the metadata service at endpoint, or at the
// SDK default (which honors AWS_EC2_METADATA_SERVICE_ENDPOINT) when empty.
func NewMetadataClient(endpoint string) *MetadataClient {
	return &MetadataClient{api: imds.New(imds.Options{Endpoint: endpoint})}
}

func (m *MetadataClient) Identity(ctx context.Context) (port.InstanceIdentity, error) {
	out, err := m.api.GetInstanceIdentityDocument(ctx, &imds.GetInstanceIdentityDocumentInput{})
	if err != nil {
		return port.InstanceIdentity{}, fmt.Errorf("fetch instance identity: %w", err)
	}
	if out.InstanceID == "" {
		return port.InstanceIdentity{}, errors.New("instance identity has no instanceId")
	}
	return port.InstanceIdentity{Region: out.Region, InstanceID: out.InstanceID}, nil
}
