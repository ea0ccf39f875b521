package lark

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/garyjia/approval-engine/internal/application/port"
	"go.uber.org/zap"
)

// Messenger implements port.MessageSender over Lark IM text messages
type Messenger struct {
	messageAPI *MessageAPI
	logger     *zap.Logger
}

// NewMessenger creates a new Lark message sender adapter
func NewMessenger(client *SDKClient, logger *zap.Logger) *Messenger {
	return &Messenger{
		messageAPI: NewMessageAPI(client, logger),
		logger:     logger,
	}
}

// SendMessage sends a text message to the user with the given open id
func (m *Messenger) SendMessage(ctx context.Context, openID string, content string) error {
	if openID == "" {
		return fmt.Errorf("openID cannot be empty")
	}
	if content == "" {
		return fmt.Errorf("content cannot be empty")
	}

	textContent, err := json.Marshal(map[string]string{"text": content})
	if err != nil {
		return fmt.Errorf("failed to encode message content: %w", err)
	}

	if _, err := m.messageAPI.SendMessage(ctx, "open_id", openID, "text", string(textContent)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// Verify interface compliance
var _ port.MessageSender = (*Messenger)(nil)
