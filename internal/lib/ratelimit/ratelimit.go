// Package ratelimit реализует счётчик неудачных попыток в фиксированном окне,
// хранящийся в Redis и общий для всех экземпляров API.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrKeyRequired возвращается при пустом ключе.
var ErrKeyRequired = errors.New("key is required")

// Result — состояние окна для ключа.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter возвращает время до сброса окна относительно now.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || !r.ResetAt.After(now) {
		return 0
	}
	return r.ResetAt.Sub(now)
}

// FixedWindow считает события по ключу в окне фиксированной длины.
// Окно открывается первым событием и закрывается по истечении TTL ключа.
type FixedWindow struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewFixedWindow создаёт счётчик с префиксом ключей prefix.
func NewFixedWindow(client *redis.Client, prefix string, limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (f *FixedWindow) key(key string) string {
	return f.prefix + ":" + key
}

// Status возвращает состояние окна, не увеличивая счётчик.
func (f *FixedWindow) Status(ctx context.Context, key string) (*Result, error) {
	const op = "ratelimit.Status"
	if key == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrKeyRequired)
	}
	pipe := f.client.Pipeline()
	getCmd := pipe.Get(ctx, f.key(key))
	ttlCmd := pipe.PTTL(ctx, f.key(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	current, err := getCmd.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return f.result(current, ttlCmd.Val()), nil
}

// Hit регистрирует событие и возвращает состояние окна после него.
func (f *FixedWindow) Hit(ctx context.Context, key string) (*Result, error) {
	const op = "ratelimit.Hit"
	if key == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrKeyRequired)
	}
	k := f.key(key)
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := f.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		ttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	remaining := ttl.Val()
	if remaining <= 0 {
		if err := f.client.PExpire(ctx, k, f.window).Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		remaining = f.window
	}
	return f.result(incr.Val(), remaining), nil
}

// Reset удаляет счётчик ключа.
func (f *FixedWindow) Reset(ctx context.Context, key string) error {
	const op = "ratelimit.Reset"
	if err := f.client.Del(ctx, f.key(key)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (f *FixedWindow) result(current int64, ttl time.Duration) *Result {
	if ttl < 0 {
		ttl = 0
	}
	remaining := f.limit - int(current)
	if remaining < 0 {
		remaining = 0
	}
	return &Result{
		Allowed:   int(current) < f.limit,
		Limit:     f.limit,
		Remaining: remaining,
		ResetAt:   f.now().Add(ttl),
	}
}
