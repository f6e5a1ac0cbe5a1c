package sender

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/whatsapp-sender/pkg/models"
)

const (
	reasonStopped     = "stopped by operator"
	reasonSessionLost = "session lost"
)

// Session is the browser capability the loop drives
type Session interface {
	Open(ctx context.Context) error
	SendMessage(ctx context.Context, number, message string) models.Outcome
	Close() error
}

// RunInfo identifies a run to its reporter
type RunInfo struct {
	ID     string
	Source string
	Total  int
	Delay  time.Duration
}

// Reporter observes a run. Implementations must not block.
type Reporter interface {
	RunStarted(info RunInfo)
	SessionReady()
	Processing(row models.Row)
	Recorded(result models.RunResult)
	RunFinished(state models.RunState, err error)
}

// Loop sends rows one at a time, in input order
type Loop struct {
	Delay  time.Duration
	Logger *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLoop creates a loop that pauses delay between two sends
func NewLoop(delay time.Duration, logger *zap.Logger) *Loop {
	return &Loop{
		Delay:  delay,
		Logger: logger.Named("loop"),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Process walks rows against an open session and returns one result per
// row, in order. ctx is checked before every row; a send already in
// flight is allowed to finish. The returned error is a
// *models.SessionLostError when the session died mid-run.
func (l *Loop) Process(ctx context.Context, rows []models.Row, sess Session, reporter Reporter) ([]models.RunResult, models.RunState, error) {
	results := make([]models.RunResult, 0, len(rows))
	record := func(row models.Row, status models.ResultStatus, detail string) {
		res := models.RunResult{Row: row, Status: status, Error: detail, At: l.now()}
		results = append(results, res)
		reporter.Recorded(res)
	}
	skipRest := func(from int, reason string) {
		for _, row := range rows[from:] {
			record(row, models.StatusSkipped, reason)
		}
	}

	// Sends are never cancelled halfway; stopping is observed between rows
	sendCtx := context.WithoutCancel(ctx)
	sentBefore := false

	for i, row := range rows {
		if ctx.Err() != nil {
			l.Logger.Info("run stopped", zap.Int("remaining", len(rows)-i))
			skipRest(i, reasonStopped)
			return results, models.RunStopped, nil
		}

		if row.Skipped() {
			record(row, models.StatusSkipped, row.SkipReason)
			continue
		}

		if sentBefore && l.Delay > 0 {
			if err := l.sleep(ctx, l.Delay); err != nil {
				l.Logger.Info("run stopped during pause", zap.Int("remaining", len(rows)-i))
				skipRest(i, reasonStopped)
				return results, models.RunStopped, nil
			}
		}

		reporter.Processing(row)
		out := sess.SendMessage(sendCtx, row.Record.Number, row.Record.Message)
		sentBefore = true

		if errors.Is(out.Err, models.ErrSessionLost) {
			record(row, models.StatusFailed, detail(out))
			skipRest(i+1, reasonSessionLost)
			return results, models.RunAborted, &models.SessionLostError{Row: row, Err: out.Err}
		}

		switch out.Status {
		case models.StatusSent:
			record(row, models.StatusSent, "")
		default:
			l.Logger.Warn("send failed", zap.Int("row", row.Index), zap.String("detail", detail(out)))
			record(row, models.StatusFailed, detail(out))
		}
	}

	return results, models.RunCompleted, nil
}

func detail(out models.Outcome) string {
	switch {
	case out.Detail != "" && out.Err != nil:
		return out.Detail + ": " + out.Err.Error()
	case out.Err != nil:
		return out.Err.Error()
	}
	return out.Detail
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
