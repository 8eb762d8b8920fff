package patch_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/crucible-cli/internal/tournament/models"
	"github.com/xkilldash9x/crucible-cli/internal/tournament/patch"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(raw)
}

// snapshot captures every file's content under dir, keyed by relative path.
func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files[rel] = readFile(t, path)
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestApplyThenRevertRestoresTreeByteForByte(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.go", "package a\n\nfunc Add(x, y int) int { return x + y }\n")
	b := writeFile(t, dir, "b.go", "package a\n\nvar answer = 42\n")

	edits := []models.ProposedEdit{
		{FilePath: a, Original: "func Add(x, y int) int { return x + y }", Replacement: "func Add(x, y int) int {\n\treturn x + y\n}"},
		{FilePath: b, Original: "var answer = 42", Replacement: "const answer = 42"},
	}

	before := snapshot(t, dir)
	applier := patch.NewApplier(zaptest.NewLogger(t))

	require.NoError(t, applier.Apply(edits))
	require.Contains(t, readFile(t, b), "const answer")

	require.NoError(t, applier.Revert(edits))
	if diff := cmp.Diff(before, snapshot(t, dir)); diff != "" {
		t.Fatalf("working tree diverged after revert (-before +after):\n%s", diff)
	}
}

func TestApplySkipsMissingFileSilently(t *testing.T) {
	dir := t.TempDir()
	applier := patch.NewApplier(zaptest.NewLogger(t))

	edits := []models.ProposedEdit{
		{FilePath: filepath.Join(dir, "ghost.go"), Original: "x", Replacement: "y"},
	}
	require.NoError(t, applier.Apply(edits))
	require.NoFileExists(t, filepath.Join(dir, "ghost.go"))
}

func TestApplySkipsWhenOriginalTextAbsent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "hello world\n")
	applier := patch.NewApplier(zaptest.NewLogger(t))

	edits := []models.ProposedEdit{
		{FilePath: path, Original: "goodbye", Replacement: "farewell"},
	}
	require.NoError(t, applier.Apply(edits))
	require.Equal(t, "hello world\n", readFile(t, path))
}

func TestApplyReplacesOnlyFirstOccurrence(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "foo bar foo\n")
	applier := patch.NewApplier(zaptest.NewLogger(t))

	edits := []models.ProposedEdit{
		{FilePath: path, Original: "foo", Replacement: "baz"},
	}
	require.NoError(t, applier.Apply(edits))
	require.Equal(t, "baz bar foo\n", readFile(t, path))

	require.NoError(t, applier.Revert(edits))
	require.Equal(t, "foo bar foo\n", readFile(t, path))
}

func TestRevertUnwindsStackedEditsOnSameFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "one two three\n")
	applier := patch.NewApplier(zaptest.NewLogger(t))

	// The second edit's original text only exists after the first applied.
	edits := []models.ProposedEdit{
		{FilePath: path, Original: "one", Replacement: "1"},
		{FilePath: path, Original: "1 two", Replacement: "1 2"},
	}
	require.NoError(t, applier.Apply(edits))
	require.Equal(t, "1 2 three\n", readFile(t, path))

	require.NoError(t, applier.Revert(edits))
	require.Equal(t, "one two three\n", readFile(t, path))
}
