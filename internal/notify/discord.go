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

	"github.com/rs/zerolog"
)

// DiscordNotifier 通过 Discord Webhook 推送消息。
type DiscordNotifier struct {
	webhookURL string
	username   string
	client     *http.Client
	logger     zerolog.Logger
}

// NewDiscordNotifier 构造 Discord 告警器。
func NewDiscordNotifier(webhookURL, username string, timeout time.Duration, logger zerolog.Logger) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &DiscordNotifier{
		webhookURL: strings.TrimSpace(webhookURL),
		username:   username,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_discord").Logger(),
	}
}

// Notify 调用 webhook execute API 推送文本。
func (n *DiscordNotifier) Notify(ctx context.Context, signal Signal) error {
	payload := map[string]string{
		"content": renderMessage(signal),
	}
	if n.username != "" {
		payload["username"] = n.username
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create discord request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send discord request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord 响应码异常: %d %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	n.logger.Info().Str("token", signal.Token).
		Str("drop", signal.Drop.String()).
		Msg("告警已发送 (Discord)")
	return nil
}

var _ Notifier = (*DiscordNotifier)(nil)
