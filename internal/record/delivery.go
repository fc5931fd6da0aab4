package record

import "context"

// Delivery is an event plus what routing learned about it.
type Delivery struct {
	Event Event
	// Phone as sent by the platform, trimmed.
	Phone string
	// ChatID of the linked client chat, 0 when none.
	ChatID int64
}

// Consumer reacts to deliveries. Implementations must not panic or block on I/O
// beyond their own bounded calls.
type Consumer interface {
	Name() string
	Handle(ctx context.Context, d *Delivery)
}
