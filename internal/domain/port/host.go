package port

import "context"

type InstanceIdentity struct {
	Region     string
	InstanceID string
}

type InstanceMetadata interface {
	Identity(ctx context.Context) (InstanceIdentity, error)
}

type InstanceControl interface {
	SetTerminationProtection(ctx context.Context, instanceID string, enabled bool) error
}
