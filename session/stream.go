package session

import (
	"context"
	"time"
)

// DefaultTickInterval is the pacing used when none is configured
const DefaultTickInterval = 20 * time.Millisecond

// Delivery is one step of a simulated stream
type Delivery struct {
	Text string
	Done bool
}

// Stream paces the display of an already complete text. It emits prefixes
// growing by one character per tick and marks the last one Done. The channel
// is closed after the final delivery, or early without a Done delivery when
// ctx is cancelled
func Stream(ctx context.Context, fullText string, interval time.Duration) <-chan Delivery {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	out := make(chan Delivery)
	runes := []rune(fullText)

	go func() {
		defer close(out)

		if len(runes) == 0 {
			select {
			case out <- Delivery{Done: true}:
			case <-ctx.Done():
			}
			return
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for i := 1; i <= len(runes); i++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			select {
			case out <- Delivery{Text: string(runes[:i]), Done: i == len(runes)}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
