package device

import (
	"context"
	"errors"
	"testing"
	"time"

	probing "github.com/prometheus-community/pro-bing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPinger is a mock for the Pinger interface
type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) RunWithContext(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockPinger) Statistics() *probing.Statistics {
	return m.Called().Get(0).(*probing.Statistics)
}

func (m *MockPinger) SetPrivileged(privileged bool) {
	m.Called(privileged)
}

func factoryFor(p Pinger) PingerFactory {
	return func(string, int, time.Duration) (Pinger, error) { return p, nil }
}

func TestNewChecker_Host(t *testing.T) {
	p, err := NewChecker("http://ebus.local:8080/api", CheckOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ebus.local", p.Host())

	_, err = NewChecker("/relative", CheckOptions{})
	assert.Error(t, err)
}

func TestCheck_Alive(t *testing.T) {
	mp := new(MockPinger)
	mp.On("SetPrivileged", false).Return()
	mp.On("RunWithContext", mock.Anything).Return(nil)
	mp.On("Statistics").Return(&probing.Statistics{
		PacketsSent: 3,
		PacketsRecv: 3,
		AvgRtt:      2500 * time.Microsecond,
	})

	p, err := NewChecker("http://10.0.0.7", CheckOptions{NewPinger: factoryFor(mp)})
	require.NoError(t, err)

	st := p.Check(context.Background())

	assert.True(t, st.Alive)
	assert.Equal(t, "10.0.0.7", st.Host)
	assert.InDelta(t, 2.5, st.LatencyMs, 0.001)
	assert.Equal(t, 0.0, st.PacketLoss)
	assert.Empty(t, st.Error)
	mp.AssertExpectations(t)

	last, ok := p.Last()
	require.True(t, ok)
	assert.Equal(t, st, last)
}

func TestCheck_RunError(t *testing.T) {
	mp := new(MockPinger)
	mp.On("SetPrivileged", true).Return()
	mp.On("RunWithContext", mock.Anything).Return(errors.New("socket: operation not permitted"))

	p, err := NewChecker("http://10.0.0.7", CheckOptions{Privileged: true, NewPinger: factoryFor(mp)})
	require.NoError(t, err)

	st := p.Check(context.Background())

	assert.False(t, st.Alive)
	assert.Equal(t, 100.0, st.PacketLoss)
	assert.Contains(t, st.Error, "not permitted")
	mp.AssertNotCalled(t, "Statistics")
}

func TestCheck_ResolveError(t *testing.T) {
	factory := func(string, int, time.Duration) (Pinger, error) {
		return nil, errors.New("lookup ebus.invalid: no such host")
	}

	p, err := NewChecker("http://ebus.invalid", CheckOptions{NewPinger: factory})
	require.NoError(t, err)

	st := p.Check(context.Background())

	assert.False(t, st.Alive)
	assert.Equal(t, 100.0, st.PacketLoss)
	assert.NotEmpty(t, st.Error)
}

func TestCheck_NoReplies(t *testing.T) {
	mp := new(MockPinger)
	mp.On("SetPrivileged", false).Return()
	mp.On("RunWithContext", mock.Anything).Return(nil)
	mp.On("Statistics").Return(&probing.Statistics{PacketsSent: 3, PacketLoss: 100})

	p, err := NewChecker("http://10.0.0.7", CheckOptions{NewPinger: factoryFor(mp)})
	require.NoError(t, err)

	st := p.Check(context.Background())

	assert.False(t, st.Alive)
	assert.Zero(t, st.LatencyMs)
	assert.Equal(t, 100.0, st.PacketLoss)
}

func TestLast_Empty(t *testing.T) {
	p, err := NewChecker("http://10.0.0.7", CheckOptions{})
	require.NoError(t, err)

	_, ok := p.Last()
	assert.False(t, ok)
}
