// internal/tournament/proposal/parser.go
package proposal

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/crucible-cli/internal/tournament/models"
)

// Parser converts a policy's free-text response into a structured Proposal.
// The response is treated as an untrusted stream scanned for well-formed
// tagged blocks; malformed or partial tag structures are tolerated and only
// well-formed edit blocks are extracted.
type Parser struct {
	logger *zap.Logger
	root   string
}

var (
	reasoningRegex  = regexp.MustCompile(`(?s)<reasoning>(.*?)</reasoning>`)
	confidenceRegex = regexp.MustCompile(`<confidence>\s*([0-9]*\.?[0-9]+)\s*</confidence>`)
	editBlockRegex  = regexp.MustCompile(`(?s)<edit\s+file="([^"\n]+)"\s*>(.*?)</edit>`)
	originalRegex   = regexp.MustCompile(`(?s)<original>(.*?)</original>`)
	replaceRegex    = regexp.MustCompile(`(?s)<replacement>(.*?)</replacement>`)
)

// NewParser creates a parser resolving relative edit paths against root.
func NewParser(logger *zap.Logger, root string) *Parser {
	return &Parser{
		logger: logger.Named("proposal_parser"),
		root:   root,
	}
}

// Parse extracts the reasoning block, the self-reported confidence and zero
// or more edit blocks from a raw policy response. A response containing no
// recognizable blocks yields an empty Proposal, not an error.
func (p *Parser) Parse(raw string) models.Proposal {
	prop := models.Proposal{
		Confidence: 0.5,
	}

	if m := reasoningRegex.FindStringSubmatch(raw); len(m) > 1 {
		prop.Reasoning = strings.TrimSpace(m[1])
	}

	if m := confidenceRegex.FindStringSubmatch(raw); len(m) > 1 {
		if conf, err := strconv.ParseFloat(m[1], 64); err == nil {
			prop.Confidence = clamp01(conf)
		}
	}

	for _, block := range editBlockRegex.FindAllStringSubmatch(raw, -1) {
		relPath, body := block[1], block[2]

		orig := originalRegex.FindStringSubmatch(body)
		repl := replaceRegex.FindStringSubmatch(body)
		if orig == nil || repl == nil {
			p.logger.Debug("Skipping malformed edit block (missing original or replacement).",
				zap.String("file", relPath))
			continue
		}

		edit := models.ProposedEdit{
			Original:    trimBlock(orig[1]),
			Replacement: trimBlock(repl[1]),
		}
		if edit.IsNoop() {
			p.logger.Debug("Skipping no-op edit.", zap.String("file", relPath))
			continue
		}

		abs, ok := p.resolvePath(relPath)
		if !ok {
			p.logger.Warn("Skipping edit with unsafe file path.", zap.String("file", relPath))
			continue
		}
		edit.FilePath = abs
		edit.LinesAdded, edit.LinesRemoved = lineDelta(edit.Original, edit.Replacement)

		prop.Edits = append(prop.Edits, edit)
	}

	return prop
}

// resolvePath maps a proposal-relative path to an absolute path inside the
// working tree, rejecting traversal outside the root.
func (p *Parser) resolvePath(relPath string) (string, bool) {
	cleaned := filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(cleaned) {
		rel, err := filepath.Rel(p.root, cleaned)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", false
		}
		return cleaned, true
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.Join(p.root, cleaned), true
}

// trimBlock strips the single newline that conventionally follows the opening
// tag and precedes the closing tag, keeping the snippet itself byte-exact.
func trimBlock(s string) string {
	s = strings.TrimPrefix(s, "\n")
	s = strings.TrimSuffix(s, "\n")
	return s
}

func lineDelta(original, replacement string) (added, removed int) {
	delta := countLines(replacement) - countLines(original)
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
