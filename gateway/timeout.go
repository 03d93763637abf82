package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"thirdangle/domain"
)

type timeoutGateway struct {
	next    Gateway
	timeout time.Duration
}

// WithTimeout bounds every call on gw by d. An expired deadline is reported
// as domain.ErrTimeout. A non-positive d returns gw unchanged.
func WithTimeout(gw Gateway, d time.Duration) Gateway {
	if d <= 0 {
		return gw
	}
	return &timeoutGateway{next: gw, timeout: d}
}

func (g *timeoutGateway) FetchBoard(ctx context.Context) (domain.Board, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	b, err := g.next.FetchBoard(ctx)
	return b, asTimeout(ctx, err)
}

func (g *timeoutGateway) UpdateStatus(ctx context.Context, taskID string, status domain.Status) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return asTimeout(ctx, g.next.UpdateStatus(ctx, taskID, status))
}

func asTimeout(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, domain.ErrTimeout) {
		return fmt.Errorf("%w: %w", domain.ErrTimeout, err)
	}
	return err
}
