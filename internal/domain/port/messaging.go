package port

import "context"

type CompletionPublisher interface {
	PublishCompletion(ctx context.Context, body []byte, contentType string) error
}

type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, msg []byte, reason string) error
}
