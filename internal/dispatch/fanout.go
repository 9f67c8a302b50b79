package dispatch

import (
	"context"
	"log/slog"
	"strings"

	"AnnounceRelay/internal/metrics"
)

// FanOut delivers final text to every configured destination, independently and in order.
type FanOut struct {
	registry     *Registry
	destinations []Destination
	logger       *slog.Logger
}

// NewFanOut wires the registry with the ordered destination list.
func NewFanOut(reg *Registry, destinations []Destination, log *slog.Logger) *FanOut {
	return &FanOut{registry: reg, destinations: destinations, logger: log}
}

// Dispatch attempts delivery to each destination and returns how many succeeded. A failing
// destination is logged and skipped. Zero is a valid result and means nothing was published.
func (f *FanOut) Dispatch(ctx context.Context, text, sourceURL string) int {
	if len(f.destinations) == 0 {
		f.logWarn("no destinations configured; skipping post")
		return 0
	}

	final := withSourceLink(text, sourceURL)

	delivered := 0
	for _, dest := range f.destinations {
		publisher, err := f.registry.Resolve(dest.Platform)
		if err != nil {
			metrics.Deliveries.WithLabelValues(dest.Platform, "unroutable").Inc()
			f.logError("destination has no publisher", "destination", dest.String(), "error", err)
			continue
		}
		if err := publisher.Publish(ctx, dest.ID, final); err != nil {
			metrics.Deliveries.WithLabelValues(dest.Platform, "failed").Inc()
			f.logError("post to channel failed", "destination", dest.String(), "error", err)
			continue
		}
		metrics.Deliveries.WithLabelValues(dest.Platform, "delivered").Inc()
		delivered++
	}

	if delivered < len(f.destinations) {
		f.logWarn("partial delivery", "delivered", delivered, "targets", len(f.destinations))
	}
	return delivered
}

// withSourceLink appends the source link unless the generated text already carries it.
func withSourceLink(text, sourceURL string) string {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" || strings.Contains(text, sourceURL) {
		return text
	}
	return strings.TrimRight(text, "\n ") + "\n\n" + sourceURL
}

func (f *FanOut) logWarn(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Warn(msg, args...)
	}
}

func (f *FanOut) logError(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Error(msg, args...)
	}
}
