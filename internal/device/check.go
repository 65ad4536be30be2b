// Package device checks whether the eBUS adapter answers on the network,
// independently of its HTTP API.
package device

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Pinger is the part of a pro-bing pinger the Checker uses.
type Pinger interface {
	RunWithContext(ctx context.Context) error
	Statistics() *probing.Statistics
	SetPrivileged(privileged bool)
}

// PingerFactory creates a pinger for one check.
type PingerFactory func(host string, count int, timeout time.Duration) (Pinger, error)

// NewICMPPinger is the default PingerFactory.
func NewICMPPinger(host string, count int, timeout time.Duration) (Pinger, error) {
	p, err := probing.NewPinger(host)
	if err != nil {
		return nil, err
	}
	p.Count = count
	p.Timeout = timeout
	return p, nil
}

// Status is the result of one reachability check.
type Status struct {
	Host       string    `json:"host"`
	Alive      bool      `json:"alive"`
	LatencyMs  float64   `json:"latency_ms"`
	PacketLoss float64   `json:"packet_loss"`
	CheckedAt  time.Time `json:"checked_at"`
	Error      string    `json:"error,omitempty"`
}

// CheckOptions configures a Checker.
type CheckOptions struct {
	Count      int
	Timeout    time.Duration
	Privileged bool

	// NewPinger overrides the pinger factory. Defaults to NewICMPPinger.
	NewPinger PingerFactory
}

// Checker pings the adapter host and remembers the last result.
type Checker struct {
	host       string
	count      int
	timeout    time.Duration
	privileged bool
	newPinger  PingerFactory

	mu   sync.RWMutex
	last *Status
}

// NewChecker creates a Checker for the host of deviceURL.
func NewChecker(deviceURL string, opts CheckOptions) (*Checker, error) {
	u, err := url.Parse(deviceURL)
	if err != nil {
		return nil, fmt.Errorf("parse device url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("device url %q has no host", deviceURL)
	}

	if opts.Count <= 0 {
		opts.Count = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.NewPinger == nil {
		opts.NewPinger = NewICMPPinger
	}

	return &Checker{
		host:       host,
		count:      opts.Count,
		timeout:    opts.Timeout,
		privileged: opts.Privileged,
		newPinger:  opts.NewPinger,
	}, nil
}

// Host returns the checked host name.
func (c *Checker) Host() string {
	return c.host
}

// Check pings the host once (Count echo requests) and records the result.
// A host that cannot be resolved or pinged is reported as down with 100%
// packet loss; Check itself never fails.
func (c *Checker) Check(ctx context.Context) Status {
	st := Status{Host: c.host, PacketLoss: 100, CheckedAt: time.Now()}

	pinger, err := c.newPinger(c.host, c.count, c.timeout)
	if err != nil {
		st.Error = err.Error()
		return c.record(st)
	}
	pinger.SetPrivileged(c.privileged)

	if err := pinger.RunWithContext(ctx); err != nil {
		st.Error = err.Error()
		return c.record(st)
	}

	stats := pinger.Statistics()
	if stats == nil {
		st.Error = "no statistics"
		return c.record(st)
	}

	st.PacketLoss = stats.PacketLoss
	st.Alive = stats.PacketsRecv > 0
	if st.Alive {
		st.LatencyMs = float64(stats.AvgRtt.Microseconds()) / 1000
	}
	return c.record(st)
}

// Last returns the most recent check result, if any.
func (c *Checker) Last() (Status, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return Status{}, false
	}
	return *c.last, true
}

func (c *Checker) record(st Status) Status {
	c.mu.Lock()
	c.last = &st
	c.mu.Unlock()
	return st
}
