package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/josh-kwaku/withdrawal-settlement/internal/domain"
	"github.com/josh-kwaku/withdrawal-settlement/internal/metrics"
	"github.com/josh-kwaku/withdrawal-settlement/internal/notify"
)

type codeExpirer interface {
	ExpireDue(ctx context.Context, limit int) ([]domain.WithdrawalCode, error)
}

type idempotencyCleaner interface {
	CleanExpired(ctx context.Context, now time.Time) (int64, error)
}

type notifier interface {
	Notify(ctx context.Context, e notify.Event) bool
}

// Housekeeper materialises code expiry and prunes the idempotency cache.
// Redemption expires codes lazily on its own; the sweep only keeps stored
// status in line with time and tells holders their code lapsed. Several
// instances may sweep at once since each batch skips rows locked by
// another.
type Housekeeper struct {
	codes       codeExpirer
	idempotency idempotencyCleaner
	notifier    notifier
	logger      *slog.Logger
	interval    time.Duration
	batch       int
	now         func() time.Time
}

func NewHousekeeper(
	codes codeExpirer,
	idempotency idempotencyCleaner,
	notifier notifier,
	logger *slog.Logger,
	interval time.Duration,
	batch int,
) *Housekeeper {
	if batch < 1 {
		batch = 100
	}
	return &Housekeeper{
		codes:       codes,
		idempotency: idempotency,
		notifier:    notifier,
		logger:      logger,
		interval:    interval,
		batch:       batch,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (h *Housekeeper) Start(ctx context.Context) {
	h.logger.Info("housekeeper started", "interval", h.interval, "batch", h.batch)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("housekeeper stopped")
			return
		case <-ticker.C:
			h.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns the number of codes it expired.
func (h *Housekeeper) Sweep(ctx context.Context) int {
	start := time.Now()
	defer func() { metrics.SweepDuration.Observe(time.Since(start).Seconds()) }()

	expired := h.expireCodes(ctx)

	if h.idempotency != nil {
		n, err := h.idempotency.CleanExpired(ctx, h.now())
		if err != nil {
			h.logger.Error("failed to prune idempotency cache", "error", err)
		} else if n > 0 {
			h.logger.Info("idempotency cache pruned", "deleted", n)
		}
	}
	return expired
}

func (h *Housekeeper) expireCodes(ctx context.Context) int {
	total := 0
	for {
		codes, err := h.codes.ExpireDue(ctx, h.batch)
		if err != nil {
			h.logger.Error("failed to expire withdrawal codes", "error", err)
			return total
		}

		now := h.now()
		for i := range codes {
			c := &codes[i]
			h.notifier.Notify(ctx, notify.CodeExpired(c, now))
			h.logger.Info("withdrawal code expired",
				"code_id", c.ID,
				"account_id", c.AccountID,
				"amount", domain.FormatAmount(c.Amount),
			)
		}
		metrics.CodesExpired.Add(float64(len(codes)))
		total += len(codes)

		if len(codes) < h.batch || ctx.Err() != nil {
			return total
		}
	}
}
