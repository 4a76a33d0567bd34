package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keygate-io/keygate/internal/database/testutil"
)

func TestEvaluateReadinessAggregatesStatus(t *testing.T) {
	manager := NewHealthManager()
	manager.RegisterReadiness(NewCheck("up", func(context.Context) ProbeResult {
		return ProbeResult{Status: StatusUp}
	}))
	manager.RegisterReadiness(NewCheck("degraded", func(context.Context) ProbeResult {
		return ProbeResult{Status: StatusDegraded, Details: "slow"}
	}))

	report := manager.EvaluateReadiness(context.Background())
	require.False(t, report.Success)
	require.Equal(t, StatusDegraded, report.Status)
	require.Len(t, report.Checks, 2)

	manager.RegisterReadiness(NewCheck("down", func(context.Context) ProbeResult {
		return ProbeResult{Status: StatusDown}
	}))

	report = manager.EvaluateReadiness(context.Background())
	require.Equal(t, StatusDown, report.Status)
}

func TestEvaluateLivenessEmptyIsHealthy(t *testing.T) {
	report := NewHealthManager().EvaluateLiveness(context.Background())
	require.True(t, report.Success)
	require.Equal(t, StatusUp, report.Status)
}

func TestDatabaseCheck(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	result := DatabaseCheck(db, time.Second).Run(context.Background())
	require.Equal(t, StatusUp, result.Status)

	result = DatabaseCheck(nil, time.Second).Run(context.Background())
	require.Equal(t, StatusDown, result.Status)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestRedisCheck(t *testing.T) {
	result := RedisCheck(stubPinger{}, time.Second).Run(context.Background())
	require.Equal(t, StatusUp, result.Status)

	result = RedisCheck(stubPinger{err: errors.New("connection refused")}, time.Second).Run(context.Background())
	require.Equal(t, StatusDown, result.Status)
	require.Contains(t, result.Details, "connection refused")

	result = RedisCheck(nil, time.Second).Run(context.Background())
	require.Equal(t, StatusDown, result.Status)
}

func TestResultFromErrorTreatsTimeoutAsDegraded(t *testing.T) {
	result := ResultFromError("redis", context.DeadlineExceeded, time.Millisecond)
	require.Equal(t, StatusDegraded, result.Status)
}
