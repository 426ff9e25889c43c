package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const telegramMaxRunes = 4096

// Telegram posts messages to a channel or chat through the Bot API.
type Telegram struct {
	Token   string
	ChatID  string
	BaseURL string
	client  *http.Client
}

// NewTelegram returns a Telegram publisher.
func NewTelegram(token, chatID string, timeout time.Duration) *Telegram {
	return &Telegram{Token: token, ChatID: chatID, BaseURL: "https://api.telegram.org", client: newHTTPClient(timeout)}
}

func (t *Telegram) Platform() string { return "telegram" }

func (t *Telegram) Configured() bool { return t.Token != "" && t.ChatID != "" }

// Publish sends the title as a bold first line when present. The returned id
// is chat_id:message_id.
func (t *Telegram) Publish(ctx context.Context, title, body string) (string, error) {
	text := body
	if title = strings.TrimSpace(title); title != "" {
		text = "*" + title + "*\n\n" + body
	}
	req := map[string]any{
		"chat_id":    t.ChatID,
		"text":       truncate(text, telegramMaxRunes),
		"parse_mode": "Markdown",
	}

	var out struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
		Result      struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.BaseURL, "/"), t.Token)
	if _, err := doJSON(ctx, t.client, t.Platform(), http.MethodPost, url, nil, req, &out); err != nil {
		return "", err
	}
	if !out.OK {
		return "", errors.New("telegram error: " + out.Description)
	}
	return fmt.Sprintf("%s:%d", t.ChatID, out.Result.MessageID), nil
}
