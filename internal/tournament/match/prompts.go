// internal/tournament/match/prompts.go
package match

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/crucible-cli/internal/tournament/models"
)

// responseContract describes the tagged wire format both policies must emit.
// The parser tolerates anything else in the response, so the contract is a
// request, not a guarantee.
const responseContract = `**Response Format (Strict):**
Respond with exactly these tagged blocks. Free text outside the tags is ignored.

<reasoning>
Why these edits advance the objective.
</reasoning>
<confidence>0.0 to 1.0 self-assessment</confidence>
<edit file="relative/path/from/project/root">
<original>
The EXACT, byte-for-byte text currently in the file. It must match a unique,
contiguous span of the file or the edit will be skipped.
</original>
<replacement>
The full replacement for that span.
</replacement>
</edit>

Emit one <edit> block per discrete change. Emit no <edit> blocks if no safe
improvement exists.`

func explorerSystemPrompt() string {
	return `You are the 'Explorer', one of two competing policies in an autonomous code
improvement tournament. Your strategy bias: explore broadly and accept risk.
Propose the most impactful edits you can find toward the objective, even if
they restructure code, as long as the project must still build and pass its
tests. Your proposal is scored by actually running the project's build and
test commands against it.

` + responseContract
}

func refinerSystemPrompt() string {
	return `You are the 'Refiner', one of two competing policies in an autonomous code
improvement tournament. Your strategy bias: refine conservatively. You are
shown a summary of the Explorer's proposed (not yet applied) edits; produce a
safer, more surgical proposal toward the same objective. Minimal, verifiable
edits beat sweeping ones. Your proposal is scored by actually running the
project's build and test commands against it.

` + responseContract
}

func buildUserPrompt(obj models.Objective, codeContext, explorerSummary string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "**Objective:** %s\n\n", obj.Goal)
	fmt.Fprintf(&b, "**Verification:** build command `%s`, test command `%s`. Edits that break either lose the match.\n\n", obj.BuildCommand, obj.TestCommand)

	if explorerSummary != "" {
		b.WriteString("**The Explorer's current proposal (for your information, not applied):**\n")
		b.WriteString(explorerSummary)
		b.WriteString("\n\n")
	}

	b.WriteString("**Target files:**\n")
	b.WriteString(codeContext)
	return b.String()
}

// summarizeProposal renders diff stats of a parsed proposal for the refiner's
// prompt: per-edit file path and line delta, plus the reasoning lead.
func summarizeProposal(prop models.Proposal) string {
	if len(prop.Edits) == 0 {
		return "- The Explorer proposed no edits."
	}

	var b strings.Builder
	for _, edit := range prop.Edits {
		fmt.Fprintf(&b, "- %s (+%d/-%d lines)\n", edit.FilePath, edit.LinesAdded, edit.LinesRemoved)
	}
	if prop.Reasoning != "" {
		fmt.Fprintf(&b, "- Explorer's reasoning: %s\n", firstLines(prop.Reasoning, 3))
	}
	fmt.Fprintf(&b, "- Explorer's confidence: %.2f", prop.Confidence)
	return b.String()
}

func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, " ")
}
