package approval

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMaintenanceRejectsBadSchedule(t *testing.T) {
	_, err := NewMaintenance("not a schedule", func(context.Context) (int, error) { return 0, nil })
	require.Error(t, err)
}

func TestMaintenanceRunOnce(t *testing.T) {
	var runs atomic.Int32
	m, err := NewMaintenance("@every 1h", func(ctx context.Context) (int, error) {
		runs.Add(1)
		return 2, ctx.Err()
	})
	require.NoError(t, err)

	m.Start()
	m.RunOnce()
	m.Stop()
	assert.Equal(t, int32(1), runs.Load())
}

func TestMaintenanceLogsJobError(t *testing.T) {
	m, err := NewMaintenance("@daily", func(context.Context) (int, error) { return 0, errors.New("db down") })
	require.NoError(t, err)
	m.RunOnce()
	m.Stop()
}
