package orchestrator

import (
	"fmt"
	"strings"

	"gamesmith/internal/config"
	"gamesmith/internal/session"
)

// buildContext renders the session into the user message for the coding
// cycle: plan, numbered fragments, generated assets, and the work item. The
// fragments are numbered because replace_range operations are resolved
// against exactly these line positions. A pending error report outranks the
// fresh instruction; the model is told both, in that order.
func buildContext(sess *session.Session, instruction string, cfg config.OrchestratorConfig) string {
	var b strings.Builder

	if sess.Plan != nil {
		b.WriteString("## Plan\n")
		fmt.Fprintf(&b, "Title: %s\n", sess.Plan.Title)
		fmt.Fprintf(&b, "Concept: %s\n", sess.Plan.Concept)
		if len(sess.Plan.Features) > 0 {
			b.WriteString("Features:\n")
			for _, f := range sess.Plan.Features {
				fmt.Fprintf(&b, "- %s\n", f)
			}
		}
		if len(sess.Plan.Assets) > 0 {
			b.WriteString("Planned assets:\n")
			for _, a := range sess.Plan.Assets {
				fmt.Fprintf(&b, "- %s: %s\n", a.Name, a.Description)
			}
		}
		b.WriteString("\n")
	}

	writeFragmentSection(&b, "structure", sess.Fragments.Structure)
	writeFragmentSection(&b, "style", sess.Fragments.Style)
	writeFragmentSection(&b, "behavior", sess.Fragments.Behavior)

	if cfg.IncludeOutline {
		if outline := structureOutline(sess.Fragments.Structure, cfg.OutlineMaxLines); outline != "" {
			b.WriteString("## Structure outline\n")
			b.WriteString(outline)
			b.WriteString("\n")
		}
	}

	if len(sess.Assets) > 0 {
		b.WriteString("## Generated images\n")
		for _, a := range sess.Assets {
			fmt.Fprintf(&b, "- %s -> %s\n", a.Name, a.URL)
		}
		b.WriteString("\n")
	}

	if sess.ErrorReport != nil {
		fmt.Fprintf(&b, "## Error report (%s)\n%s\n\nFix this first.\n\n", sess.ErrorReport.Kind, sess.ErrorReport.Message)
	}

	if strings.TrimSpace(instruction) != "" {
		fmt.Fprintf(&b, "## Instruction\n%s\n", instruction)
	} else if sess.ErrorReport == nil {
		b.WriteString("## Instruction\nContinue with the next step of the plan.\n")
	}

	return b.String()
}

func writeFragmentSection(b *strings.Builder, name, text string) {
	if strings.TrimSpace(text) == "" {
		fmt.Fprintf(b, "## Fragment: %s\n(empty)\n\n", name)
		return
	}
	lines := strings.Split(text, "\n")
	fmt.Fprintf(b, "## Fragment: %s (%d lines)\n", name, len(lines))
	for i, line := range lines {
		fmt.Fprintf(b, "%4d| %s\n", i+1, line)
	}
	b.WriteString("\n")
}

// structureOutline condenses the structure fragment to its element-opening
// lines so the model can navigate large markup without rereading all of it.
func structureOutline(structure string, maxLines int) string {
	if strings.TrimSpace(structure) == "" {
		return ""
	}
	if maxLines <= 0 {
		maxLines = 120
	}

	var b strings.Builder
	count := 0
	for i, line := range strings.Split(structure, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "<") || strings.HasPrefix(trimmed, "</") || strings.HasPrefix(trimmed, "<!--") {
			continue
		}
		if count >= maxLines {
			b.WriteString("     ... truncated\n")
			break
		}
		fmt.Fprintf(&b, "%4d| %s\n", i+1, firstN(trimmed, 100))
		count++
	}
	return b.String()
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
