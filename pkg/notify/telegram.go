package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TelegramAdapter sends notifications via Telegram. The session id doubles as
// the Telegram chat id, matching how sessions are keyed by the chat that
// opened them.
type TelegramAdapter struct {
	botToken string
	baseURL  string
	client   *http.Client
}

// TelegramConfig configures the Telegram adapter.
type TelegramConfig struct {
	// BotToken is the Telegram bot token from @BotFather
	BotToken string

	// BaseURL overrides the Telegram API endpoint, used in tests
	BaseURL string
}

// NewTelegramAdapter creates a Telegram adapter.
func NewTelegramAdapter(cfg TelegramConfig) (*TelegramAdapter, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &TelegramAdapter{
		botToken: cfg.BotToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Name returns the adapter name.
func (t *TelegramAdapter) Name() string {
	return "telegram"
}

// Send sends a notification to the chat identified by the event's session id.
func (t *TelegramAdapter) Send(ctx context.Context, event *Event) error {
	var msg strings.Builder

	switch event.Type {
	case EventSuggestionReady:
		msg.WriteString("💡 *Suggestion ready*\n\n")
	case EventSuggestionApplied:
		msg.WriteString("✅ *Suggestion applied*\n\n")
	case EventSuggestionRejected:
		msg.WriteString("🗑 *Suggestion rejected*\n\n")
	case EventSuggestionFailed:
		msg.WriteString("❌ *Suggestion failed*\n\n")
	}

	msg.WriteString(escapeMarkdown(event.Message))
	if event.SuggestionID != "" {
		msg.WriteString(fmt.Sprintf("\n\n_Suggestion #%s_", event.SuggestionID))
	}

	payload := map[string]any{
		"chat_id":    event.SessionID,
		"text":       msg.String(),
		"parse_mode": "Markdown",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram API returned %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

// Close is a no-op; the adapter holds no long-lived connections.
func (t *TelegramAdapter) Close() error {
	return nil
}

func escapeMarkdown(text string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return replacer.Replace(text)
}
