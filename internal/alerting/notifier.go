package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"arb-explorer/internal/opportunity"
)

// Notification 封装一次机会告警。
type Notification struct {
	Opportunity opportunity.Record
	Rank        int
	Threshold   decimal.Decimal
	SnapshotID  string
	Channels    []string
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    RenderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram 返回 ok=false")
	}

	n.logger.Info().Time("opportunity_ts", note.Opportunity.Timestamp).
		Str("direction", string(note.Opportunity.Direction)).
		Float64("net_profit_usd", note.Opportunity.NetProfit).
		Msg("告警已发送 (Telegram)")
	return nil
}

// LogNotifier writes alerts to the log when no chat channel is configured.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier constructs a log-only notifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the alert at warn level.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	rec := note.Opportunity
	n.logger.Warn().
		Time("opportunity_ts", rec.Timestamp).
		Str("direction", rec.Direction.Label()).
		Str("net_profit_usd", decimal.NewFromFloat(rec.NetProfit).StringFixed(2)).
		Int("rank", note.Rank).
		Msg("opportunity above alert threshold")
	return nil
}

// RenderMessage formats note as plain text.
func RenderMessage(note Notification) string {
	rec := note.Opportunity
	builder := strings.Builder{}
	builder.WriteString("[Arbitrage Opportunity]\n")
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", rec.Timestamp.UTC().Format(time.RFC3339)))
	if rec.BlockNumber != nil {
		builder.WriteString(fmt.Sprintf("Block: %d\n", *rec.BlockNumber))
	}
	builder.WriteString(fmt.Sprintf("Direction: %s\n", rec.Direction.Label()))
	builder.WriteString(fmt.Sprintf("Prices: %s / %s\n", fixed(rec.PriceLeft, 2), fixed(rec.PriceRight, 2)))
	builder.WriteString(fmt.Sprintf("Spread: %s%%\n", fixed(rec.SpreadPct, 4)))
	builder.WriteString(fmt.Sprintf("Net profit: $%s (threshold $%s)\n", fixed(rec.NetProfit, 2), note.Threshold.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("ROI: %s%%\n", fixed(rec.RoiPct, 4)))
	if note.Rank > 0 {
		builder.WriteString(fmt.Sprintf("Rank: #%d\n", note.Rank))
	}
	if note.SnapshotID != "" {
		builder.WriteString(fmt.Sprintf("Snapshot: %s\n", note.SnapshotID))
	}
	return builder.String()
}

func fixed(v float64, places int32) string {
	return decimal.NewFromFloat(v).StringFixed(places)
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
)
