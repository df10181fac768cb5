package chat

import "context"

// Disabled is the no-op gateway used when the chat surface is off. Sends
// succeed silently and no inbound messages ever arrive.
type Disabled struct{}

func (Disabled) Send(context.Context, string, string, string) error { return nil }

// Inbound returns a channel that never delivers. Receives block, which is
// what the scheduler's non-blocking drain expects.
func (Disabled) Inbound() <-chan InboundMessage { return nil }
