// Package joblock provides a Valkey-backed distributed lock so that
// overlapping digest runs (two schedulers, an operator CLI next to the
// daemon) cannot double-send a slot.
package joblock

import (
	"context"
	"fmt"
	"time"

	"citybrief/internal/config"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

// releaseScript frees the lock only when the caller still owns it, so a run
// that outlives its TTL cannot delete a successor's lock.
var releaseScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Connect creates a Valkey client from config and verifies the connection.
func Connect(cfg config.Valkey) (valkey.Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:      []string{cfg.Address},
		Password:         cfg.Password,
		SelectDB:         cfg.DB,
		ConnWriteTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping valkey: %w", err)
	}
	return client, nil
}

// Lock acquires named leases with a TTL. Losing the race is a normal
// outcome, not an error: the holder is doing the work.
type Lock struct {
	client valkey.Client
	ttl    time.Duration
}

func New(client valkey.Client, ttl time.Duration) *Lock {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Lock{client: client, ttl: ttl}
}

// Acquire tries to take the named lock. It returns the owner token and true
// on success, or false when another run already holds the lock.
func (l *Lock) Acquire(ctx context.Context, name string) (string, bool, error) {
	token := uuid.New().String()

	cmd := l.client.B().Set().Key(key(name)).Value(token).Nx().Ex(l.ttl).Build()
	if err := l.client.Do(ctx, cmd).Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return "", false, nil // Held by another run
		}
		return "", false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	return token, true, nil
}

// Release frees the named lock if token still owns it. Releasing a lock that
// expired or changed hands is a no-op.
func (l *Lock) Release(ctx context.Context, name, token string) error {
	err := releaseScript.Exec(ctx, l.client, []string{key(name)}, []string{token}).Error()
	if err != nil && !valkey.IsValkeyNil(err) {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return nil
}

func key(name string) string {
	return "citybrief:lock:" + name
}
