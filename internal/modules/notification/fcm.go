// README: FCM push dispatcher; each user's devices subscribe to the user_<id> topic.
package notification

import (
	"context"
	"fmt"
	"log"

	"firebase.google.com/go/v4/messaging"
)

type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCMDispatcher struct {
	client messageSender
}

func NewFCMDispatcher(client *messaging.Client) *FCMDispatcher {
	return &FCMDispatcher{client: client}
}

func UserTopic(n Notification) string {
	return "user_" + string(n.UserID)
}

func (d *FCMDispatcher) Notify(ctx context.Context, n Notification) error {
	if n.UserID == "" {
		return ErrMissingUser
	}
	data := make(map[string]string, len(n.Data)+1)
	for k, v := range n.Data {
		data[k] = v
	}
	data["type"] = n.Type

	msg := &messaging.Message{
		Topic: UserTopic(n),
		Data:  data,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Message,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	messageID, err := d.client.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("sending FCM to %s: %w", msg.Topic, err)
	}
	log.Printf("FCM sent user=%s type=%s message_id=%s", n.UserID, n.Type, messageID)
	return nil
}
