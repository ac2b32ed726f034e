package firebase

import (
	"context"
	"fmt"
	"log"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// topicSender is the part of *messaging.Client the client uses.
type topicSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Client implements notification.Messenger using Firebase Cloud Messaging
type Client struct {
	msgClient topicSender
}

// NewClient initializes a Firebase app from a service account file and
// returns an FCM client.
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	msgClient, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase messaging client: %w", err)
	}

	return &Client{msgClient: msgClient}, nil
}

// SendToTopic sends a notification to every device subscribed to topic.
func (c *Client) SendToTopic(ctx context.Context, topic, title, body string, data map[string]string) error {
	topic = strings.TrimPrefix(topic, "/topics/")
	if topic == "" {
		return fmt.Errorf("topic is required")
	}

	msg := &messaging.Message{
		Topic: topic,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}

	id, err := c.msgClient.Send(ctx, msg)
	if err != nil {
		if messaging.IsInvalidArgument(err) {
			return fmt.Errorf("invalid FCM message for topic %s: %w", topic, err)
		}
		return fmt.Errorf("failed to send FCM message: %w", err)
	}

	log.Printf("FCM message %s sent to topic %s", id, topic)
	return nil
}
