package serialmux

import (
	"context"

	"github.com/banshee-data/wind.report/internal/monitoring"
)

// ValueCounts tallies what ConsumeValues saw.
type ValueCounts struct {
	Values  int
	Skipped int
}

// ConsumeValues subscribes to m and calls fn for every line that parses as a
// value. Other lines are skipped. It returns when ctx is done or the mux
// closes the subscription.
func ConsumeValues(ctx context.Context, m SerialMuxInterface, fn func(v float64)) ValueCounts {
	id, ch := m.Subscribe()
	defer m.Unsubscribe(id)
	return ConsumeLines(ctx, ch, fn)
}

// ConsumeLines is ConsumeValues over an existing subscription. Once ctx is
// done, lines already buffered on ch are still handled before it returns.
func ConsumeLines(ctx context.Context, ch <-chan string, fn func(v float64)) ValueCounts {
	var counts ValueCounts
	handle := func(line string) {
		v, ok := ParseValue(line)
		if !ok {
			counts.Skipped++
			monitoring.Logf("skipping unparsable serial line %q", line)
			return
		}
		counts.Values++
		fn(v)
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case line, ok := <-ch:
					if !ok {
						return counts
					}
					handle(line)
				default:
					return counts
				}
			}
		case line, ok := <-ch:
			if !ok {
				return counts
			}
			handle(line)
		}
	}
}
