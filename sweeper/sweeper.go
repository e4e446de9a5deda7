// Package sweeper runs the periodic housekeeping the request path only does
// opportunistically: dropping stale rate-limit windows and expired sessions.
package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/PaulFidika/accesskit/ratelimit"
)

// WindowPruner is the part of ratelimit.WindowStore the sweeper needs.
type WindowPruner interface {
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionPruner is the part of session.Store the sweeper needs.
type SessionPruner interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Result reports what one sweep removed.
type Result struct {
	Windows  int64
	Sessions int64
}

// Sweeper deletes windows older than ratelimit.Retention and sessions past expiry.
// Either pruner may be nil.
type Sweeper struct {
	windows  WindowPruner
	sessions SessionPruner
	log      logrus.FieldLogger
	now      func() time.Time
	timeout  time.Duration

	cron *cron.Cron
}

func New(windows WindowPruner, sessions SessionPruner, log logrus.FieldLogger) *Sweeper {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Sweeper{windows: windows, sessions: sessions, log: log, now: time.Now, timeout: time.Minute}
}

// RunOnce performs a single sweep. Both deletions are attempted even if the
// first fails; the first error is returned.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var (
		res      Result
		firstErr error
	)
	now := s.now().UTC()
	if s.windows != nil {
		n, err := s.windows.DeleteBefore(ctx, now.Add(-ratelimit.Retention))
		if err != nil {
			s.log.WithError(err).Warn("sweeper: window cleanup failed")
			firstErr = err
		}
		res.Windows = n
	}
	if s.sessions != nil {
		n, err := s.sessions.DeleteExpired(ctx, now)
		if err != nil {
			s.log.WithError(err).Warn("sweeper: session cleanup failed")
			if firstErr == nil {
				firstErr = err
			}
		}
		res.Sessions = n
	}
	s.log.WithFields(logrus.Fields{"windows": res.Windows, "sessions": res.Sessions}).Debug("sweeper: sweep done")
	return res, firstErr
}

// Start schedules RunOnce on spec (standard cron syntax or descriptors such
// as "@every 10m"). Overlapping runs are skipped.
func (s *Sweeper) Start(spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.log})), cron.WithLogger(cronLogger{s.log}))
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_, _ = s.RunOnce(ctx)
	}); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger routes cron's own logging through logrus.
type cronLogger struct{ log logrus.FieldLogger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.WithFields(fields(kv)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.WithError(err).WithFields(fields(kv)).Error("cron: " + msg)
}

func fields(kv []any) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			f[k] = kv[i+1]
		}
	}
	return f
}
