package notification

import "context"

// Messenger delivers a push message to every device subscribed to a topic.
// Implemented by the Firebase FCM client in the infrastructure layer.
type Messenger interface {
	SendToTopic(ctx context.Context, topic, title, body string, data map[string]string) error
}
