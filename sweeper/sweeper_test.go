package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulFidika/accesskit/ratelimit"
	memorylimiter "github.com/PaulFidika/accesskit/ratelimit/memory"
	"github.com/PaulFidika/accesskit/session"
	memorysession "github.com/PaulFidika/accesskit/session/memory"
)

var now = time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

func TestRunOnceDropsStaleRows(t *testing.T) {
	ctx := context.Background()
	windows := memorylimiter.New()
	key := ratelimit.Key{Identifier: "u1", IdentifierType: ratelimit.IdentifierUser, FunctionName: "access_check"}
	require.NoError(t, windows.Insert(ctx, ratelimit.Window{Key: key, Granularity: ratelimit.Minute, WindowStart: now.Add(-2 * time.Hour), RequestCount: 3}))
	require.NoError(t, windows.Insert(ctx, ratelimit.Window{Key: key, Granularity: ratelimit.Minute, WindowStart: ratelimit.Minute.Start(now), RequestCount: 1}))

	sessions := memorysession.New()
	defer sessions.Close()
	require.NoError(t, sessions.Create(ctx, session.Session{ID: "s1", UserID: "u1", Token: "t1", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, sessions.Create(ctx, session.Session{ID: "s2", UserID: "u1", Token: "t2", ExpiresAt: now.Add(time.Hour)}))

	s := New(windows, sessions, nil)
	s.now = func() time.Time { return now }

	res, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{Windows: 1, Sessions: 1}, res)
	assert.Len(t, windows.Windows(), 1)

	left, err := sessions.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "s2", left[0].ID)
}

type failingPruner struct{ err error }

func (f failingPruner) DeleteBefore(context.Context, time.Time) (int64, error) { return 0, f.err }

type countingSessions struct{ calls int }

func (c *countingSessions) DeleteExpired(context.Context, time.Time) (int64, error) {
	c.calls++
	return 2, nil
}

func TestRunOnceContinuesAfterFailure(t *testing.T) {
	log, hook := test.NewNullLogger()
	boom := errors.New("connection refused")
	sessions := &countingSessions{}

	s := New(failingPruner{err: boom}, sessions, log)
	res, err := s.RunOnce(context.Background())

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, sessions.calls)
	assert.Equal(t, int64(2), res.Sessions)
	require.NotNil(t, hook.LastEntry())

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "sweeper: window cleanup failed" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(nil, nil, nil)
	assert.Error(t, s.Start("not a schedule"))
	s.Stop(context.Background())
}

func TestStartAndStop(t *testing.T) {
	s := New(nil, &countingSessions{}, nil)
	require.NoError(t, s.Start("@every 1h"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
