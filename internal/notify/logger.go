package notify

import (
	"context"
	"log/slog"

	"github.com/josh-kwaku/withdrawal-settlement/internal/logging"
)

// loggerFrom keeps the request-scoped logger when the caller set one.
func loggerFrom(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l := logging.FromContext(ctx); l != slog.Default() {
		return l
	}
	return fallback
}
