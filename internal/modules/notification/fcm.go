// README: Firebase Cloud Messaging implementation of the push channel.
package notification

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/messaging"
)

type FCMSender struct {
	client *messaging.Client
}

func NewFCMSender(client *messaging.Client) *FCMSender {
	return &FCMSender{client: client}
}

// Send delivers a high-priority notification with a data payload. Tokens the
// backend reports as unregistered or bound to another sender are permanent
// failures; everything else is transient.
func (s *FCMSender) Send(ctx context.Context, token, title, body string, data map[string]string) (SendResult, error) {
	msg := &messaging.Message{
		Token: token,
		Data:  data,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": "10"},
		},
	}

	if _, err := s.client.Send(ctx, msg); err != nil {
		res := classify(err)
		if res == SendPermanentFailure {
			return res, fmt.Errorf("%w: %v", ErrPermanentToken, err)
		}
		return res, err
	}
	return SendOK, nil
}

func classify(err error) SendResult {
	if messaging.IsUnregistered(err) || messaging.IsSenderIDMismatch(err) {
		return SendPermanentFailure
	}
	return SendTransientFailure
}
