// Package ledger remembers which inbound messages already got a reply, so a
// message that stays unseen after a successful send is not dispatched twice.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Ledger interface {
	// Replied reports whether messageID is recorded.
	Replied(ctx context.Context, messageID string) (bool, error)
	// Record stores messageID; recording twice is not an error.
	Record(ctx context.Context, messageID string) error
}

type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

func key(messageID string) string { return fmt.Sprintf("mail:replied:%s", messageID) }

func (l *Redis) Replied(ctx context.Context, messageID string) (bool, error) {
	n, err := l.rdb.Exists(ctx, key(messageID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *Redis) Record(ctx context.Context, messageID string) error {
	return l.rdb.SetNX(ctx, key(messageID), time.Now().Unix(), l.ttl).Err()
}

// Memory is the ledger used when no redis is configured. Entries live for
// the process lifetime, bounded by ttl.
type Memory struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{ttl: ttl, seen: map[string]time.Time{}, now: time.Now}
}

func (l *Memory) Replied(_ context.Context, messageID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	at, ok := l.seen[messageID]
	if !ok {
		return false, nil
	}
	if l.ttl > 0 && l.now().Sub(at) > l.ttl {
		delete(l.seen, messageID)
		return false, nil
	}
	return true, nil
}

func (l *Memory) Record(_ context.Context, messageID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seen[messageID]; !ok {
		l.seen[messageID] = l.now()
	}
	return nil
}
