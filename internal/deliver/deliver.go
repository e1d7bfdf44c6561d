package deliver

import "context"

// Request is one digest to push through a sink. Address is channel-specific:
// an email address for the email sink, a chat id for the telegram sink.
type Request struct {
	Subject  string
	Markdown string
	Address  string
}

// Sink delivers a digest over one channel. Each attempt returns success or a
// single error; the executor records outcomes per channel independently.
type Sink interface {
	Channel() string
	Deliver(ctx context.Context, req Request) error
}
