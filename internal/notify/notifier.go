// Package notify delivers availability and operator notifications.
package notify

import "context"

// Notifier is the outbound notification contract. Subscriber-visible sends
// (chat, broadcast) carry availability news only; everything diagnostic goes
// to the operator or the log channel.
type Notifier interface {
	// SendOperator delivers a message to the operator's private chat.
	SendOperator(ctx context.Context, msg string) error
	// SendChat posts to the shared announcement channel.
	SendChat(ctx context.Context, msg string) error
	// SendBroadcast fans a message out to every subscriber.
	SendBroadcast(ctx context.Context, msg string) error
	// SendLog posts to the low-priority log channel.
	SendLog(ctx context.Context, msg string) error
	// SendImageOperator sends a diagnostic screenshot to the operator.
	SendImageOperator(ctx context.Context, path string) error
	// SendImageChat posts a screenshot to the announcement channel.
	SendImageChat(ctx context.Context, path string) error
}

// Discard drops every notification. Used by one-shot commands that have no
// audience.
type Discard struct{}

func (Discard) SendOperator(context.Context, string) error      { return nil }
func (Discard) SendChat(context.Context, string) error          { return nil }
func (Discard) SendBroadcast(context.Context, string) error     { return nil }
func (Discard) SendLog(context.Context, string) error           { return nil }
func (Discard) SendImageOperator(context.Context, string) error { return nil }
func (Discard) SendImageChat(context.Context, string) error     { return nil }
