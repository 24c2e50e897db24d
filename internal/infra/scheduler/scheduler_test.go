package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	n     int64
	err   error
	calls int
}

func (f *fakeSweeper) SweepTimeouts(context.Context) (int64, error) {
	f.calls++
	return f.n, f.err
}

type fakePruner struct{ window time.Duration }

func (f *fakePruner) Prune(_ time.Time, window time.Duration) int {
	f.window = window
	return 2
}

type fakeObserver struct{ total int64 }

func (f *fakeObserver) ResponsesTimedOut(n int64) { f.total += n }

func newEntry() (*logrus.Entry, *test.Hook) {
	l, hook := test.NewNullLogger()
	return logrus.NewEntry(l), hook
}

func TestStart_RegistersJobs(t *testing.T) {
	entry, _ := newEntry()
	s := NewAlertScheduler(&fakeSweeper{}, &fakePruner{}, nil, 5*time.Minute, entry, "* * * * *", "0 * * * *")

	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Len(t, s.cronEngine.Entries(), 2)
}

func TestStart_SkipsPruneWithoutMemoryStore(t *testing.T) {
	entry, _ := newEntry()
	s := NewAlertScheduler(&fakeSweeper{}, nil, nil, 5*time.Minute, entry, "* * * * *", "0 * * * *")

	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Len(t, s.cronEngine.Entries(), 1)
}

func TestStart_InvalidSpec(t *testing.T) {
	entry, _ := newEntry()
	s := NewAlertScheduler(&fakeSweeper{}, nil, nil, time.Minute, entry, "every minute", "0 * * * *")

	assert.Error(t, s.Start())
}

func TestResponseSweepJob(t *testing.T) {
	entry, hook := newEntry()
	sweeper := &fakeSweeper{n: 3}
	obs := &fakeObserver{}
	s := NewAlertScheduler(sweeper, nil, obs, time.Minute, entry, "* * * * *", "")

	s.runResponseSweep()
	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, int64(3), obs.total)

	sweeper.err = errors.New("db down")
	s.runResponseSweep()
	assert.Equal(t, int64(3), obs.total)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestCooldownPruneJob_UsesWindow(t *testing.T) {
	entry, _ := newEntry()
	pruner := &fakePruner{}
	s := NewAlertScheduler(&fakeSweeper{}, pruner, nil, 7*time.Minute, entry, "* * * * *", "0 * * * *")

	s.runCooldownPrune()
	assert.Equal(t, 7*time.Minute, pruner.window)
}
