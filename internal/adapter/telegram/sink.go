package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/urbanstore/khqrpay/internal/domain/model"
)

// DefaultAPIBase is the Telegram Bot API endpoint.
const DefaultAPIBase = "https://api.telegram.org"

// Sink delivers settlement notifications to an operator chat. Delivery is
// best-effort; callers log failures and continue.
type Sink struct {
	apiBase    *url.URL
	token      string
	chatID     string
	httpClient *http.Client
	logger     *slog.Logger
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// NewSink builds a Telegram sink. With an empty token or chat id the sink is
// disabled and every send becomes a no-op.
func NewSink(apiBase, token, chatID string, logger *slog.Logger) (*Sink, error) {
	parsed, err := url.Parse(apiBase)
	if err != nil {
		return nil, fmt.Errorf("parse telegram api base: %w", err)
	}
	return &Sink{
		apiBase: parsed,
		token:   token,
		chatID:  chatID,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

// Enabled reports whether the sink has credentials to deliver messages.
func (s *Sink) Enabled() bool {
	return s.token != "" && s.chatID != ""
}

// Send delivers a payment lifecycle notification.
func (s *Sink) Send(ctx context.Context, n model.Notification) error {
	return s.sendText(ctx, formatNotification(n))
}

// Alert delivers an operator alert, e.g. about rejected oracle credentials.
func (s *Sink) Alert(ctx context.Context, message string) error {
	return s.sendText(ctx, "🚨 <b>OPERATOR ALERT</b>\n"+message)
}

func (s *Sink) sendText(ctx context.Context, text string) error {
	if !s.Enabled() {
		s.logger.Debug("telegram sink disabled, dropping message")
		return nil
	}

	endpoint := *s.apiBase
	endpoint.Path = fmt.Sprintf("/bot%s/sendMessage", s.token)

	body, err := json.Marshal(sendMessageRequest{ChatID: s.chatID, Text: text, ParseMode: "HTML"})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram send: %s: %s", resp.Status, string(raw))
	}
	return nil
}

func formatNotification(n model.Notification) string {
	var header string
	switch n.Status {
	case model.OrderStatusPaid:
		header = "✅ <b>PAYMENT SUCCESS</b>"
	case model.OrderStatusCancelled:
		header = "❌ <b>PAYMENT EXPIRED</b>"
	default:
		header = "⏳ <b>PAYMENT PENDING</b>"
	}

	var b strings.Builder
	b.WriteString(header)
	fmt.Fprintf(&b, "\n🧾 Order ID: <b>%d</b>", n.OrderID)
	if n.ItemSummary != "" {
		fmt.Fprintf(&b, "\n📦 Items: %s", n.ItemSummary)
	}
	fmt.Fprintf(&b, "\n💵 Amount: <b>%d ៛</b>", n.Amount)
	fmt.Fprintf(&b, "\n💳 Bakong KHQR (%s)", maskDigest(n.Digest))
	fmt.Fprintf(&b, "\n⏰ %s", time.Now().Format(time.RFC3339))
	return b.String()
}

// maskDigest keeps the first and last four characters of the verification
// digest so operators can correlate without leaking the full value.
func maskDigest(digest string) string {
	if len(digest) <= 8 {
		return strings.Repeat("*", len(digest))
	}
	return digest[:4] + strings.Repeat("*", len(digest)-8) + digest[len(digest)-4:]
}
