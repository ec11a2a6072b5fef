// Package eventlog mirrors gateway events onto a Redis stream so other
// processes can follow what the ship and its submarines are doing.
// Logging is fire-and-forget: a missing or unreachable Redis never
// affects gateway behavior.
package eventlog

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	streamKey  = "events:shipgate"
	maxLen     = 10000
	addTimeout = 2 * time.Second
)

// Entry is one logged event.
type Entry struct {
	ID        string    `json:"id"`
	Event     string    `json:"event"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Log appends events to a Redis stream. A nil Log discards everything.
type Log struct {
	rdb *redis.Client
}

// New connects a Log to the Redis at addr. An empty addr returns nil,
// which is safe to use and logs nothing.
func New(addr string) *Log {
	if addr == "" {
		return nil
	}
	return &Log{rdb: redis.NewClient(&redis.Options{Addr: addr})}
}

// Record appends one event. Failures are logged and dropped.
func (l *Log) Record(event string, payload any) {
	if l == nil {
		return
	}
	entry := Entry{
		ID:        uuid.NewString(),
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("eventlog: marshal %s: %v", event, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), addTimeout)
	defer cancel()
	if err := l.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: maxLen,
		Approx: true,
		Values: map[string]interface{}{"event": entry.Event, "message": string(data)},
	}).Err(); err != nil {
		log.Printf("eventlog: XADD %s: %v", streamKey, err)
	}
}

// Close releases the Redis connection.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.rdb.Close()
}
