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

	"envwatch/internal/anomaly"
)

// maxListedEvents bounds the events rendered into a text message.
const maxListedEvents = 5

// Notification carries the outcome of one detection run.
type Notification struct {
	AnalysisID string          `json:"analysisId"`
	StationID  string          `json:"stationId"`
	Pollutant  string          `json:"pollutant"`
	P95        float64         `json:"p95"`
	Params     anomaly.Config  `json:"analysisParams"`
	Events     []anomaly.Event `json:"detectedAnomalies"`
	DetectedAt time.Time       `json:"detectedAt"`
}

// Notifier delivers notifications to a channel.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier pushes notifications through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
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

// Notify calls sendMessage with a rendered summary.
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
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
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().Str("analysis_id", note.AnalysisID).
		Str("station_id", note.StationID).
		Int("events", len(note.Events)).
		Msg("alert sent (telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[Pollutant Anomaly Alert]\n")
	builder.WriteString(fmt.Sprintf("Station: %s\n", note.StationID))
	builder.WriteString(fmt.Sprintf("Pollutant: %s\n", note.Pollutant))
	builder.WriteString(fmt.Sprintf("Events: %d (p95 %s)\n", len(note.Events), fixed2(note.P95)))
	builder.WriteString(fmt.Sprintf("Window: %d, k=%s, min duration %d points\n",
		note.Params.WindowSize, fixed2(note.Params.ThresholdMultiplier), note.Params.MinEventDuration))

	for i, ev := range note.Events {
		if i == maxListedEvents {
			builder.WriteString(fmt.Sprintf("... and %d more\n", len(note.Events)-maxListedEvents))
			break
		}
		builder.WriteString(fmt.Sprintf("- %s -> %s UTC, %d points, max %s, avg %s\n",
			ev.StartTime.UTC().Format(time.RFC3339),
			ev.EndTime.UTC().Format(time.RFC3339),
			ev.Duration,
			fixed2(ev.MaxValue),
			fixed2(ev.AvgValue),
		))
	}
	if note.AnalysisID != "" {
		builder.WriteString(fmt.Sprintf("Analysis: %s\n", note.AnalysisID))
	}
	return builder.String()
}

func fixed2(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

var _ Notifier = (*TelegramNotifier)(nil)
