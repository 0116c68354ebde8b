package provider

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	kerr "github.com/hyperjump/kioku/pkg/errors"
	"github.com/hyperjump/kioku/pkg/utils"
)

// BreakerConfig tunes BreakerGenerator.
type BreakerConfig struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultBreakerConfig trips after 5 requests with at least 60% failures.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:         "generator",
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		FailureRatio: 0.6,
		MinRequests:  5,
	}
}

// BreakerGenerator stops calling a failing Generator until it has had time to recover.
type BreakerGenerator struct {
	next Generator
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerGenerator wraps next with a circuit breaker.
func NewBreakerGenerator(next Generator, cfg BreakerConfig, logger *zap.Logger) *BreakerGenerator {
	logger = utils.LoggerOrNop(logger)
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about upstream health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &BreakerGenerator{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Generate calls the wrapped generator unless the breaker is open.
func (b *BreakerGenerator) Generate(ctx context.Context, req Request) (string, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Generate(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", kerr.Wrap(err, kerr.CodeProviderUnavailable, "generator unavailable", kerr.Field("breaker", b.cb.Name()))
	}
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// State returns the breaker state name.
func (b *BreakerGenerator) State() string {
	return b.cb.State().String()
}
