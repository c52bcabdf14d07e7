// ABOUTME: Cron-scheduled removal of expired object log session folders
// ABOUTME: Uses gronx to compute the next tick and deletes folders older than the retention period

package objectlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"
)

// Pruner deletes session folders older than a retention period on a cron schedule.
type Pruner struct {
	log       *Logger
	cron      string
	retention time.Duration
	logger    *slog.Logger
}

// NewPruner validates cronExpr and returns a Pruner for l.
func NewPruner(l *Logger, cronExpr string, retention time.Duration) (*Pruner, error) {
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid prune cron expression: %q", cronExpr)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive")
	}
	return &Pruner{
		log:       l,
		cron:      cronExpr,
		retention: retention,
		logger:    l.logger.With("component", "objectlog.pruner"),
	}, nil
}

// Run prunes on every cron tick until ctx is canceled.
func (p *Pruner) Run(ctx context.Context) {
	p.logger.Info("object log pruning scheduled", "cron", p.cron, "retention", p.retention)

	for {
		next, err := gronx.NextTickAfter(p.cron, time.Now(), false)
		if err != nil {
			p.logger.Error("computing next prune tick", "error", err)
			next = time.Now().Add(time.Hour)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("object log pruner stopping")
			return
		case <-timer.C:
		}

		removed, err := p.PruneOnce(time.Now())
		if err != nil {
			p.logger.Error("pruning object logs", "error", err)
			continue
		}
		p.logger.Info("object logs pruned", "removed", removed)
	}
}

// PruneOnce removes session folders last modified before now minus retention.
// It returns the number of folders removed.
func (p *Pruner) PruneOnce(now time.Time) (int, error) {
	entries, err := os.ReadDir(p.log.dir)
	if err != nil {
		return 0, fmt.Errorf("reading object log directory: %w", err)
	}

	cutoff := now.Add(-p.retention)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(p.log.dir, e.Name())); err != nil {
			p.logger.Warn("removing session folder", "folder", e.Name(), "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		p.log.forget()
	}
	return removed, nil
}
