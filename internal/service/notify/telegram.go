package notify

import (
	"context"
	"fmt"
	"net/http"

	dservice "SigTrail/internal/domain/service"
	xhttp "SigTrail/pkg/http"
)

// TelegramNotifier delivers signal announcements to a Telegram chat via the
// bot API.
type TelegramNotifier struct {
	token  string
	chatID string
	client *xhttp.Client
}

// NewTelegramNotifier creates a notifier for the given bot token and chat.
func NewTelegramNotifier(token, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		token:  token,
		chatID: chatID,
		client: xhttp.NewClient(),
	}
}

// Send posts a message to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, message string) error {
	resp, err := t.client.SendRequest(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token),
		Headers: map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		},
		Body: map[string]string{
			"chat_id": t.chatID,
			"text":    message,
		},
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram send failed: %s", resp.Status)
	}
	return nil
}

var _ dservice.Notifier = (*TelegramNotifier)(nil)
