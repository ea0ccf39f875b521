package port

import "context"

// MessageSender delivers a text message to a user over an external IM channel
type MessageSender interface {
	SendMessage(ctx context.Context, openID string, content string) error
}
