package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fleahunter/internal/model"
	"fleahunter/internal/pkg/metrics"
)

// NtfyNotifier 推送到 ntfy 主题，手机端点开即达。
type NtfyNotifier struct {
	topicURL string
	client   *http.Client
	logger   *slog.Logger
}

func NewNtfyNotifier(topicURL string, logger *slog.Logger) *NtfyNotifier {
	return &NtfyNotifier{
		topicURL: topicURL,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

func (n *NtfyNotifier) Send(ctx context.Context, record *model.ProductRecord, reason string) error {
	title := record.BasicInfo.Title
	if len([]rune(title)) > 30 {
		title = string([]rune(title)[:30]) + "..."
	}
	body := fmt.Sprintf("price: %s\nreason: %s\nlink: %s",
		record.BasicInfo.Price, reason, record.BasicInfo.Link)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.topicURL, bytes.NewBufferString(body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("Title", "🚨 New recommendation! "+title)
	req.Header.Set("Priority", "urgent")
	req.Header.Set("Tags", "bell,vibration")
	req.Header.Set("Click", record.BasicInfo.Link)
	if len(record.BasicInfo.ImageURLs) > 0 {
		req.Header.Set("Attach", record.BasicInfo.ImageURLs[0])
	}

	resp, err := n.client.Do(req)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("ntfy", "error").Inc()
		return fmt.Errorf("send ntfy: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		metrics.NotificationsTotal.WithLabelValues("ntfy", "error").Inc()
		return fmt.Errorf("send ntfy: status %d", resp.StatusCode)
	}

	metrics.NotificationsTotal.WithLabelValues("ntfy", "ok").Inc()
	n.logger.Info("ntfy notification sent", slog.String("item_id", record.BasicInfo.ItemID))
	return nil
}

// WebhookNotifier 把完整记录 POST 到任意回调地址，方便接入自建系统。
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewWebhookNotifier(url string, logger *slog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

func (n *WebhookNotifier) Send(ctx context.Context, record *model.ProductRecord, reason string) error {
	payload, err := json.Marshal(map[string]any{
		"reason": reason,
		"record": record,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("webhook", "error").Inc()
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		metrics.NotificationsTotal.WithLabelValues("webhook", "error").Inc()
		return fmt.Errorf("send webhook: status %d", resp.StatusCode)
	}

	metrics.NotificationsTotal.WithLabelValues("webhook", "ok").Inc()
	n.logger.Info("webhook notification sent", slog.String("item_id", record.BasicInfo.ItemID))
	return nil
}
