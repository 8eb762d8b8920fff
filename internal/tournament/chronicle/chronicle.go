// internal/tournament/chronicle/chronicle.go

// Package chronicle records the run's durable artifacts: git commits for
// permanently applied iterations and the final JSON report. It observes the
// loop; it never influences it, so every failure here is logged and dropped.
package chronicle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/internal/config"
	"github.com/xkilldash9x/crucible-cli/internal/tournament/models"
)

// Committer commits each permanently applied iteration to the project's git
// repository, when there is one and committing is enabled.
type Committer struct {
	logger *zap.Logger
	root   string
	cfg    config.GitConfig
}

// NewCommitter creates a committer for the working tree rooted at root.
func NewCommitter(logger *zap.Logger, root string, cfg config.GitConfig) *Committer {
	return &Committer{
		logger: logger.Named("chronicle"),
		root:   root,
		cfg:    cfg,
	}
}

// RecordApplied stages the iteration's applied files and commits them.
// Implements match.Recorder.
func (c *Committer) RecordApplied(_ context.Context, record models.IterationRecord) {
	if !c.cfg.CommitApplied {
		return
	}

	repo, err := git.PlainOpen(c.root)
	if err != nil {
		c.logger.Debug("Project root is not a git repository; skipping commit.", zap.Error(err))
		return
	}

	wt, err := repo.Worktree()
	if err != nil {
		c.logger.Warn("Failed to open git worktree; iteration not committed.", zap.Error(err))
		return
	}

	for _, edit := range record.AppliedEdits {
		rel, err := filepath.Rel(c.root, edit.FilePath)
		if err != nil {
			continue
		}
		if _, err := wt.Add(filepath.ToSlash(rel)); err != nil {
			c.logger.Warn("Failed to stage applied file.", zap.String("file", rel), zap.Error(err))
		}
	}

	msg := fmt.Sprintf("improve: iteration %d won by %s (%d edits)",
		record.Iteration, record.Winner, len(record.AppliedEdits))

	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  c.cfg.AuthorName,
			Email: c.cfg.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		c.logger.Warn("Failed to commit applied iteration.", zap.Error(err))
		return
	}

	c.logger.Info("Applied iteration committed.",
		zap.Int("iteration", record.Iteration),
		zap.String("commit", hash.String()))
}

// WriteReport serializes the final report as indented JSON to path.
func WriteReport(path string, report models.Report) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}
