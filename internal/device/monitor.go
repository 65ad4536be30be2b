package device

import (
	"context"
	"log/slog"
	"time"
)

// DefaultMonitorInterval is how often Monitor checks when no interval is given.
const DefaultMonitorInterval = 30 * time.Second

// Monitor checks the adapter right away, then every interval, until ctx is
// cancelled. Reachability changes are logged at warn (down) or info (up);
// a steady state is logged at debug.
func (c *Checker) Monitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	slog.Info("device monitor started", "host", c.host, "interval", interval)

	prev, seen := c.Last()
	check := func() {
		st := c.Check(ctx)
		if ctx.Err() != nil {
			return
		}
		logTransition(prev, seen, st)
		prev, seen = st, true
	}

	check()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("device monitor stopped", "host", c.host)
			return
		case <-ticker.C:
			check()
		}
	}
}

// Fresh returns the last check result if it is younger than maxAge.
func (c *Checker) Fresh(maxAge time.Duration, now time.Time) (Status, bool) {
	st, ok := c.Last()
	if !ok || now.Sub(st.CheckedAt) > maxAge {
		return Status{}, false
	}
	return st, true
}

func logTransition(prev Status, seen bool, cur Status) {
	switch {
	case seen && prev.Alive == cur.Alive:
		slog.Debug("device check", "host", cur.Host, "alive", cur.Alive, "latency_ms", cur.LatencyMs)
	case cur.Alive:
		slog.Info("device reachable", "host", cur.Host, "latency_ms", cur.LatencyMs, "packet_loss", cur.PacketLoss)
	default:
		slog.Warn("device unreachable", "host", cur.Host, "packet_loss", cur.PacketLoss, "error", cur.Error)
	}
}
