package entity

import (
	"encoding/json"
	"fmt"
)

// JobMessage is the inbound message body on the task queue.
type JobMessage struct {
	Bucket string `json:"bucket"`
	Object string `json:"object"`
}

// ParseJobMessage decodes and validates a task queue body.
func ParseJobMessage(body []byte) (JobMessage, error) {
	var msg JobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return JobMessage{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if msg.Bucket == "" || msg.Object == "" {
		return JobMessage{}, fmt.Errorf("%w: bucket and object are required", ErrMalformedMessage)
	}
	return msg, nil
}
