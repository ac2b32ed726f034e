package notification

import (
	"context"
	"errors"
	"testing"

	"bankconn/internal/shared/messages"
)

type sentMessage struct {
	topic, title, body string
	data               map[string]string
}

type MockMessenger struct {
	SendToTopicFunc func(ctx context.Context, topic, title, body string, data map[string]string) error
	sent            []sentMessage
}

func (m *MockMessenger) SendToTopic(ctx context.Context, topic, title, body string, data map[string]string) error {
	m.sent = append(m.sent, sentMessage{topic, title, body, data})
	if m.SendToTopicFunc != nil {
		return m.SendToTopicFunc(ctx, topic, title, body, data)
	}
	return nil
}

func TestNotifyActionRequired(t *testing.T) {
	tests := []struct {
		code      string
		wantTitle string
	}{
		{"LOGIN_REQUIRED", messages.Default().LoginRequired.Title},
		{"WAITING_USER_INPUT", messages.Default().WaitingUserInput.Title},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			m := &MockMessenger{}
			NewService(m, nil).NotifyActionRequired(context.Background(), 42, "item-1", tt.code)

			if len(m.sent) != 1 {
				t.Fatalf("sent %d messages, want 1", len(m.sent))
			}
			msg := m.sent[0]
			if msg.topic != "user-42" || msg.title != tt.wantTitle {
				t.Errorf("message = %+v", msg)
			}
			if msg.data["code"] != tt.code || msg.data["itemId"] != "item-1" || msg.data["route"] != CategoryAccounts {
				t.Errorf("data = %v", msg.data)
			}
		})
	}
}

func TestNotifyNewTransactions(t *testing.T) {
	m := &MockMessenger{}
	svc := NewService(m, nil)

	svc.NotifyNewTransactions(context.Background(), 7, "item-1", 0)
	if len(m.sent) != 0 {
		t.Fatalf("zero transactions should not notify, sent %d", len(m.sent))
	}

	svc.NotifyNewTransactions(context.Background(), 7, "item-1", 5)
	if len(m.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(m.sent))
	}
	if m.sent[0].body != "5 new transactions were imported from your bank." {
		t.Errorf("body = %q", m.sent[0].body)
	}
	if m.sent[0].data["count"] != "5" || m.sent[0].data["route"] != CategoryTransactions {
		t.Errorf("data = %v", m.sent[0].data)
	}
}

func TestSendFailureIsSwallowed(t *testing.T) {
	m := &MockMessenger{SendToTopicFunc: func(ctx context.Context, topic, title, body string, data map[string]string) error {
		return errors.New("fcm unavailable")
	}}
	// Must not panic or block.
	NewService(m, nil).NotifyActionRequired(context.Background(), 1, "item-1", "LOGIN_REQUIRED")

	if err := NewService(m, nil).SendToUser(context.Background(), 1, messages.MessageText{Title: "t"}, CategoryAccounts, nil); err == nil {
		t.Error("SendToUser() expected error")
	}
}

func TestSendToUser_Validation(t *testing.T) {
	svc := NewService(nil, nil)
	if err := svc.SendToUser(context.Background(), 0, messages.MessageText{}, CategoryAccounts, nil); !errors.Is(err, ErrInvalidUserID) {
		t.Errorf("SendToUser(0) error = %v", err)
	}
	if err := svc.SendToUser(context.Background(), 1, messages.MessageText{}, CategoryAccounts, nil); err != nil {
		t.Errorf("SendToUser() without messenger error = %v", err)
	}
}
