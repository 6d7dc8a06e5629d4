// Package cache keeps a short redis-backed tail of recently persisted audit
// events for the admin dashboard's live feed. It is a best-effort sink: when
// redis is down the durable pipeline is unaffected.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mssola/useragent"
	"github.com/redis/go-redis/v9"

	"flowaudit/internal/audit"
)

const (
	// DefaultKey is the redis list holding the tail.
	DefaultKey = "flowaudit:recent"
	// DefaultSize caps the tail length.
	DefaultSize = 100
)

// Entry is the compact dashboard view of one event.
type Entry struct {
	ID        string    `json:"id"`
	Type      string    `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"userId,omitempty"`
	Entity    string    `json:"entity,omitempty"`
	Severity  string    `json:"severity"`
	Success   bool      `json:"success"`
	// Client is a human-readable browser/OS summary derived from the raw
	// User-Agent, e.g. "Chrome 120 on Windows 10".
	Client string `json:"client,omitempty"`
}

// Recent implements audit.Sink over a capped redis list.
type Recent struct {
	client *redis.Client
	key    string
	size   int64
	log    *slog.Logger
}

// New creates a Recent sink. A nil client yields a disabled sink whose
// operations are no-ops, so wiring stays unconditional in main.
func New(client *redis.Client, log *slog.Logger) *Recent {
	return &Recent{
		client: client,
		key:    DefaultKey,
		size:   DefaultSize,
		log:    log.With("component", "recent_cache"),
	}
}

// Publish pushes compact entries for the batch and trims the tail. One
// pipelined round trip per flush.
func (r *Recent) Publish(ctx context.Context, events []audit.Event) error {
	if r.client == nil || len(events) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, e := range events {
		payload, err := json.Marshal(toEntry(e))
		if err != nil {
			return fmt.Errorf("marshal recent entry: %w", err)
		}
		pipe.LPush(ctx, r.key, payload)
	}
	pipe.LTrim(ctx, r.key, 0, r.size-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push recent entries: %w", err)
	}
	return nil
}

// List returns up to n entries, newest first.
func (r *Recent) List(ctx context.Context, n int64) ([]Entry, error) {
	if r.client == nil {
		return []Entry{}, nil
	}
	if n <= 0 || n > r.size {
		n = r.size
	}

	raw, err := r.client.LRange(ctx, r.key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent entries: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			r.log.Warn("skipping undecodable recent entry", "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func toEntry(e audit.Event) Entry {
	entity := e.EntityType
	if entity != "" && e.EntityID != "" {
		entity = e.EntityType + "/" + e.EntityID
	}
	return Entry{
		ID:        e.ID.String(),
		Type:      string(e.Type),
		Timestamp: e.Timestamp,
		UserID:    e.UserID,
		Entity:    entity,
		Severity:  string(e.Severity),
		Success:   e.Success,
		Client:    clientSummary(e.UserAgent),
	}
}

// clientSummary condenses a raw User-Agent into "Browser version on OS" for
// the dashboard. Bots are labelled as such; unknown agents yield "".
func clientSummary(rawUA string) string {
	if rawUA == "" {
		return ""
	}
	ua := useragent.New(rawUA)
	if ua.Bot() {
		return "bot"
	}
	name, version := ua.Browser()
	if name == "" {
		return ""
	}
	summary := name
	if version != "" {
		summary += " " + version
	}
	if os := ua.OS(); os != "" {
		summary += " on " + os
	}
	return summary
}
