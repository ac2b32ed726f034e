package notification

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"bankconn/internal/shared/messages"
)

// Service sends bank connection pushes. Delivery failures are logged and
// never surface to the sync that triggered them.
type Service struct {
	messenger Messenger
	texts     *messages.Messages
}

// NewService creates a notification service. A nil messenger disables
// delivery; nil texts fall back to the defaults.
func NewService(messenger Messenger, texts *messages.Messages) *Service {
	if texts == nil {
		texts = messages.Default()
	}
	return &Service{messenger: messenger, texts: texts}
}

// NotifyActionRequired asks the user to relink or answer their bank.
func (s *Service) NotifyActionRequired(ctx context.Context, userID int64, itemID, code string) {
	text := s.texts.LoginRequired
	if code == "WAITING_USER_INPUT" {
		text = s.texts.WaitingUserInput
	}

	err := s.SendToUser(ctx, userID, text, CategoryAccounts, map[string]string{
		"kind":   KindActionRequired,
		"itemId": itemID,
		"code":   code,
	})
	if err != nil {
		log.Printf("User %d: Failed to send action required push for item %s: %v", userID, itemID, err)
	}
}

// NotifyNewTransactions tells the user how many transactions were imported.
func (s *Service) NotifyNewTransactions(ctx context.Context, userID int64, itemID string, count int) {
	if count <= 0 {
		return
	}

	err := s.SendToUser(ctx, userID, s.texts.NewTransactions.WithCount(count), CategoryTransactions, map[string]string{
		"kind":   KindNewTransactions,
		"itemId": itemID,
		"count":  strconv.Itoa(count),
	})
	if err != nil {
		log.Printf("User %d: Failed to send new transactions push for item %s: %v", userID, itemID, err)
	}
}

// SendToUser pushes a message to the user's topic.
func (s *Service) SendToUser(ctx context.Context, userID int64, text messages.MessageText, category string, data map[string]string) error {
	if userID <= 0 {
		return ErrInvalidUserID
	}
	if s.messenger == nil {
		log.Printf("User %d: Push skipped, messaging not configured (%s)", userID, text.Title)
		return nil
	}

	if data == nil {
		data = make(map[string]string)
	}
	if _, ok := data["route"]; !ok {
		data["route"] = category
	}

	if err := s.messenger.SendToTopic(ctx, UserTopic(userID), text.Title, text.Body, data); err != nil {
		return fmt.Errorf("send to topic: %w", err)
	}
	return nil
}
