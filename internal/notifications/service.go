package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"batchcursor/internal/config"
)

const userAgent = "batchcursor/0.1.0"

// Service defines the notification surface used by the observer and the CLI.
type Service interface {
	NotifyBatchCompleted(ctx context.Context, collection string, total int, skipped int) error
	NotifySequenceInterrupted(ctx context.Context, collection, progress, reason string) error
	NotifySignalFailed(ctx context.Context, collection string, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func collectionLabel(collection string) string {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return "unknown collection"
	}
	return filepath.Base(collection)
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, collection string, total int, skipped int) error {
	message := fmt.Sprintf("✅ Batch complete: %s (%d items)", collectionLabel(collection), total)
	if skipped > 0 {
		message = fmt.Sprintf("%s\n%d skipped during the final invocation", message, skipped)
	}
	return n.send(ctx, payload{
		title:   "batchcursor - Batch Complete",
		message: message,
		tags:    []string{"batchcursor", "batch", "completed"},
	})
}

func (n *ntfyService) NotifySequenceInterrupted(ctx context.Context, collection, progress, reason string) error {
	var builder strings.Builder
	builder.WriteString("❌ Interrupted: ")
	builder.WriteString(collectionLabel(collection))
	if progress = strings.TrimSpace(progress); progress != "" {
		builder.WriteString(" at ")
		builder.WriteString(progress)
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		builder.WriteString("\n")
		builder.WriteString(reason)
	}
	builder.WriteString("\nReset the collection to start over")
	return n.send(ctx, payload{
		title:    "batchcursor - Interrupted",
		message:  builder.String(),
		tags:     []string{"batchcursor", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) NotifySignalFailed(ctx context.Context, collection string, err error) error {
	reason := "unknown"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	return n.send(ctx, payload{
		title:   "batchcursor - Scheduler Unreachable",
		message: fmt.Sprintf("Continuation signal failed for %s: %s", collectionLabel(collection), reason),
		tags:    []string{"batchcursor", "scheduler", "warning"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "batchcursor - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"batchcursor", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyBatchCompleted(context.Context, string, int, int) error            { return nil }
func (noopService) NotifySequenceInterrupted(context.Context, string, string, string) error { return nil }
func (noopService) NotifySignalFailed(context.Context, string, error) error                 { return nil }
func (noopService) TestNotification(context.Context) error                                  { return nil }
