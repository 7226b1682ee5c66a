package port

import "context"

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, jobID string, source string, errorMsg string) error
}
