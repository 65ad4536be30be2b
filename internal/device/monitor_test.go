package device

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMonitor_ChecksUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	factory := func(string, int, time.Duration) (Pinger, error) {
		calls.Add(1)
		mp := new(MockPinger)
		mp.On("SetPrivileged", false).Return()
		mp.On("RunWithContext", mock.Anything).Return(nil)
		mp.On("Statistics").Return(&probing.Statistics{PacketsSent: 1, PacketsRecv: 1, AvgRtt: time.Millisecond})
		return mp, nil
	}

	p, err := NewChecker("http://10.0.0.7", CheckOptions{NewPinger: factory})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Monitor(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Monitor did not stop after cancel")
	}

	st, ok := p.Last()
	require.True(t, ok)
	assert.True(t, st.Alive)
}

func TestFresh(t *testing.T) {
	mp := new(MockPinger)
	mp.On("SetPrivileged", false).Return()
	mp.On("RunWithContext", mock.Anything).Return(nil)
	mp.On("Statistics").Return(&probing.Statistics{PacketsSent: 1, PacketsRecv: 1})

	p, err := NewChecker("http://10.0.0.7", CheckOptions{NewPinger: factoryFor(mp)})
	require.NoError(t, err)

	_, ok := p.Fresh(time.Minute, time.Now())
	assert.False(t, ok, "no check yet")

	st := p.Check(context.Background())

	got, ok := p.Fresh(time.Minute, st.CheckedAt.Add(30*time.Second))
	assert.True(t, ok)
	assert.Equal(t, st, got)

	_, ok = p.Fresh(time.Minute, st.CheckedAt.Add(2*time.Minute))
	assert.False(t, ok, "stale result")
}
