package scan

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsless/policyscan/internal/monitor/model"
)

func schedulerFixture(p *model.Policy) (*Scheduler, *scannerFixture) {
	f := newScannerFixture(p)
	sched := NewScheduler(f.scanner, f.policies, NewRunLock(nil, time.Minute), time.Minute, 86400, 10)
	return sched, f
}

func TestSchedulerFirstRunStampsAndScans(t *testing.T) {
	p := testPolicy()
	p.LastRunTime = nil
	sched, f := schedulerFixture(p)
	f.backend.agg = []model.Series{makeSeries("host-1", 10)}

	sched.scanPolicy(context.Background(), p)

	assert.Equal(t, 1, f.backend.aggCalls)
	require.NotNil(t, p.LastRunTime)
	assert.False(t, f.policies.lastRun[p.ID].IsZero())
}

func TestSchedulerNotDueYet(t *testing.T) {
	p := testPolicy() // period 5min
	recent := time.Now().UTC().Add(-time.Minute)
	p.LastRunTime = &recent
	sched, f := schedulerFixture(p)

	sched.scanPolicy(context.Background(), p)
	assert.Zero(t, f.backend.aggCalls)
}

func TestSchedulerSingleRunWhenDue(t *testing.T) {
	p := testPolicy()
	due := time.Now().UTC().Add(-6 * time.Minute)
	p.LastRunTime = &due
	sched, f := schedulerFixture(p)
	f.backend.agg = []model.Series{makeSeries("host-1", 10)}

	sched.scanPolicy(context.Background(), p)
	assert.Equal(t, 1, f.backend.aggCalls)
}

func TestSchedulerBackfillsMissedWindows(t *testing.T) {
	p := testPolicy()
	gap := time.Now().UTC().Add(-16 * time.Minute) // three 5-minute windows
	p.LastRunTime = &gap
	sched, f := schedulerFixture(p)
	f.backend.agg = []model.Series{makeSeries("host-1", 10)}

	sched.scanPolicy(context.Background(), p)
	assert.Equal(t, 3, f.backend.aggCalls)
}

func TestSchedulerBackfillCappedByCount(t *testing.T) {
	p := testPolicy()
	longAgo := time.Now().UTC().Add(-10 * time.Hour) // 120 windows owed
	p.LastRunTime = &longAgo
	sched, f := schedulerFixture(p)
	f.backend.agg = []model.Series{makeSeries("host-1", 10)}

	sched.scanPolicy(context.Background(), p)
	assert.Equal(t, 10, f.backend.aggCalls, "backfill bounded by max count")
}

func TestSchedulerBackfillCappedBySeconds(t *testing.T) {
	p := testPolicy()
	longAgo := time.Now().UTC().Add(-72 * time.Hour)
	p.LastRunTime = &longAgo
	f := newScannerFixture(p)
	f.backend.agg = []model.Series{makeSeries("host-1", 10)}

	// seconds cap trims the gap before the count cap applies
	sched := NewScheduler(f.scanner, f.policies, NewRunLock(nil, time.Minute), time.Minute, 1800, 1000)
	sched.scanPolicy(context.Background(), p)
	assert.Equal(t, 6, f.backend.aggCalls)
}

func TestSchedulerBackfillRunTimesAdvanceByPeriod(t *testing.T) {
	p := testPolicy()
	start := time.Now().UTC().Add(-16 * time.Minute).Truncate(time.Second)
	p.LastRunTime = &start
	sched, f := schedulerFixture(p)
	f.backend.agg = []model.Series{makeSeries("host-1", 10)}

	sched.scanPolicy(context.Background(), p)

	require.NotNil(t, p.LastRunTime)
	assert.Equal(t, start.Add(15*time.Minute), *p.LastRunTime)
	assert.Equal(t, *p.LastRunTime, f.policies.lastRun[p.ID])
}

func TestSchedulerTickSkipsDisabledAndLockedOut(t *testing.T) {
	p := testPolicy()
	p.Enable = false
	sched, f := schedulerFixture(p)

	sched.tick(context.Background())
	assert.Zero(t, f.backend.aggCalls)
}
