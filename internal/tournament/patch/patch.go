// internal/tournament/patch/patch.go
package patch

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/internal/tournament/models"
)

// Applier applies a candidate's proposed edits to the working tree and can
// exactly undo them. Proposals are speculative, so edits whose target file is
// missing or whose original text is no longer present are silently skipped
// rather than failed; callers must always pair Apply with Revert unless the
// edits are being permanently kept.
type Applier struct {
	logger *zap.Logger
}

// NewApplier creates a patch applier.
func NewApplier(logger *zap.Logger) *Applier {
	return &Applier{logger: logger.Named("patch")}
}

// Apply replaces, for each edit, the first occurrence of the edit's original
// text with its replacement text. Only filesystem failures are errors.
func (a *Applier) Apply(edits []models.ProposedEdit) error {
	for _, edit := range edits {
		if err := a.replaceInFile(edit.FilePath, edit.Original, edit.Replacement); err != nil {
			return err
		}
	}
	return nil
}

// Revert is the mirror of Apply: it replaces each edit's replacement text
// back with its original text, walking the edits in reverse order so edits
// stacked on the same file unwind cleanly.
func (a *Applier) Revert(edits []models.ProposedEdit) error {
	for i := len(edits) - 1; i >= 0; i-- {
		edit := edits[i]
		if err := a.replaceInFile(edit.FilePath, edit.Replacement, edit.Original); err != nil {
			return err
		}
	}
	return nil
}

func (a *Applier) replaceInFile(path, from, to string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		a.logger.Debug("Skipping edit: target file does not exist.", zap.String("file", path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	content := string(raw)
	if !strings.Contains(content, from) {
		// The file may have diverged since the edit was proposed. Best effort
		// by policy, not a hard failure.
		a.logger.Debug("Skipping edit: original text not found in file.", zap.String("file", path))
		return nil
	}

	updated := strings.Replace(content, from, to, 1)
	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
