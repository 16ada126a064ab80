package types

import "strings"

// targetSynonyms maps the file names, extensions, and loose labels models
// actually emit onto the three fragment slots. Models are told to use the
// canonical names but routinely answer with "index.html", "css", "game.js"
// and similar; rejecting those outright would fail far too many batches.
var targetSynonyms = map[string]FragmentTarget{
	// structure
	"structure":      TargetStructure,
	"structure.html": TargetStructure,
	"html":           TargetStructure,
	"htm":            TargetStructure,
	".html":          TargetStructure,
	"index.html":     TargetStructure,
	"index.htm":      TargetStructure,
	"game.html":      TargetStructure,
	"markup":         TargetStructure,
	"body":           TargetStructure,
	"dom":            TargetStructure,

	// style
	"style":      TargetStyle,
	"styles":     TargetStyle,
	"css":        TargetStyle,
	".css":       TargetStyle,
	"style.css":  TargetStyle,
	"styles.css": TargetStyle,
	"game.css":   TargetStyle,
	"stylesheet": TargetStyle,
	"styling":    TargetStyle,

	// behavior
	"behavior":    TargetBehavior,
	"behaviour":   TargetBehavior,
	"js":          TargetBehavior,
	".js":         TargetBehavior,
	"javascript":  TargetBehavior,
	"script":      TargetBehavior,
	"scripts":     TargetBehavior,
	"code":        TargetBehavior,
	"logic":       TargetBehavior,
	"game.js":     TargetBehavior,
	"script.js":   TargetBehavior,
	"index.js":    TargetBehavior,
	"main.js":     TargetBehavior,
	"app.js":      TargetBehavior,
	"behavior.js": TargetBehavior,
}

// NormalizeTarget maps a model-supplied target label onto a fragment slot.
// Matching is case-insensitive and tolerates surrounding whitespace and a
// leading "./" or "/". The second return is false when the label cannot be
// mapped; callers treat that as fatal for the whole batch, before any
// fragment is mutated.
func NormalizeTarget(raw string) (FragmentTarget, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "./")
	s = strings.TrimPrefix(s, "/")
	target, ok := targetSynonyms[s]
	return target, ok
}
