package sender

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/whatsapp-sender/pkg/models"
)

// Execute performs one run: open the session, process every row, close
// the session. Close happens exactly once on every path, before the
// reporter hears that the run finished. When Open fails no row is
// processed and the result log is empty.
func (l *Loop) Execute(ctx context.Context, info RunInfo, rows []models.Row, sess Session, reporter Reporter) ([]models.RunResult, models.RunState, error) {
	log := l.Logger.With(zap.String("run", info.ID))
	reporter.RunStarted(info)

	var once sync.Once
	closeSession := func() {
		once.Do(func() {
			if err := sess.Close(); err != nil {
				log.Warn("failed to close session", zap.Error(err))
			}
		})
	}
	defer closeSession()

	log.Info("opening session", zap.Int("rows", len(rows)))
	if err := sess.Open(ctx); err != nil {
		state := models.RunFailed
		if errors.Is(err, context.Canceled) {
			state = models.RunStopped
		}
		log.Error("session did not open", zap.Error(err))
		closeSession()
		reporter.RunFinished(state, err)
		return nil, state, err
	}
	reporter.SessionReady()

	results, state, err := l.Process(ctx, rows, sess, reporter)
	closeSession()

	var counts models.RunSummary
	for _, r := range results {
		counts.Count(r.Status)
	}
	log.Info("run finished",
		zap.String("state", string(state)),
		zap.Int("sent", counts.Sent),
		zap.Int("failed", counts.Failed),
		zap.Int("skipped", counts.Skipped))

	reporter.RunFinished(state, err)
	return results, state, err
}
