package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScanner_ReportsReachableTargets(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	closed, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	unreachable := closed.Addr().String()
	closed.Close()

	s := NewScanner(zap.NewNop(), []string{listener.Addr().String(), unreachable}, 200*time.Millisecond)
	assert.True(t, s.IsAvailable())

	devices, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, listener.Addr().String(), devices[0].Address)
}

func TestScanner_NoTargets(t *testing.T) {
	s := NewScanner(zap.NewNop(), nil, 0)
	assert.False(t, s.IsAvailable())
	assert.Equal(t, "192.168.4.1:23", Target("192.168.4.1", 23))
}
