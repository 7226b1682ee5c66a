package entity

import "time"

// Lease binds one received message to a processing attempt. The work queue
// adapter owns its lifetime; the processor only passes it back.
type Lease struct {
	ID            string
	MessageID     string
	Body          []byte
	DeliveryCount int
	ReceivedAt    time.Time
}
