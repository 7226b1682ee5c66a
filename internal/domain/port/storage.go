package port

import "context"

type ObjectStore interface {
	Download(ctx context.Context, bucket, object, destPath string) error
}
