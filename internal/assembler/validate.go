package assembler

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// voidElements never take a closing tag and are excluded from balance
// counting.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// wrapperTags are the full-document elements a body-content fragment must
// not carry. Checked in fixed order so diagnostics are deterministic.
var wrapperTags = []string{"html", "head", "body"}

// checkWrapperMarkup flags full-document wrapper markup in the structure
// fragment. The fragment is body content only; a wrapper means the model
// emitted a whole page.
func checkWrapperMarkup(structure string) []string {
	var diagnostics []string
	lower := strings.ToLower(structure)
	if strings.Contains(lower, "<!doctype") {
		diagnostics = append(diagnostics, "structure fragment contains a doctype declaration; fragments must be body content only")
	}
	for _, tag := range wrapperTags {
		if containsTag(lower, tag) {
			diagnostics = append(diagnostics, fmt.Sprintf("structure fragment contains a <%s> wrapper; fragments must be body content only", tag))
		}
	}
	return diagnostics
}

// containsTag reports whether lower contains an opening tag with exactly the
// given name. A bare prefix match is not enough: <head> must not fire on
// <header>.
func containsTag(lower, name string) bool {
	needle := "<" + name
	for start := 0; ; {
		idx := strings.Index(lower[start:], needle)
		if idx < 0 {
			return false
		}
		after := start + idx + len(needle)
		if after >= len(lower) {
			return true
		}
		switch lower[after] {
		case '>', ' ', '\t', '\n', '\r', '/':
			return true
		}
		start = after
	}
}

// checkMisplacedBlocks flags script and style blocks inside the structure
// fragment. Behavior code belongs in the behavior fragment and styling in
// the style fragment; anything else ends up as an extra block in body
// content.
func checkMisplacedBlocks(structure string) []string {
	if strings.TrimSpace(structure) == "" {
		return nil
	}
	var diagnostics []string
	scripts, styles := countBlocks(structure)
	if scripts > 0 {
		diagnostics = append(diagnostics, fmt.Sprintf("structure fragment contains %d script block(s); at most one behavior block is allowed and it belongs in the behavior fragment", scripts))
	}
	if styles > 0 {
		diagnostics = append(diagnostics, fmt.Sprintf("structure fragment contains %d style block(s); styling belongs in the style fragment", styles))
	}
	return diagnostics
}

func countBlocks(markup string) (scripts, styles int) {
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return scripts, styles
		}
		if tt != html.StartTagToken {
			continue
		}
		name, _ := z.TagName()
		switch string(name) {
		case "script":
			scripts++
		case "style":
			styles++
		}
	}
}

// CheckTagBalance counts opening against closing tags for every container
// element in the markup and reports each mismatch. Void elements are
// ignored, as are self-closing tags. The executor reuses this after ranged
// replaces of the structure fragment.
func CheckTagBalance(markup string) []string {
	if strings.TrimSpace(markup) == "" {
		return nil
	}

	opens := make(map[string]int)
	closes := make(map[string]int)
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		name, _ := z.TagName()
		tag := string(name)
		if tag == "" {
			continue
		}
		switch tt {
		case html.StartTagToken:
			if !voidElements[tag] {
				opens[tag]++
			}
		case html.EndTagToken:
			if !voidElements[tag] {
				closes[tag]++
			}
		}
	}

	seen := make(map[string]bool, len(opens)+len(closes))
	var tags []string
	for tag := range opens {
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	for tag := range closes {
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)

	var diagnostics []string
	for _, tag := range tags {
		if opens[tag] != closes[tag] {
			diagnostics = append(diagnostics, fmt.Sprintf("unbalanced <%s>: %d opening, %d closing", tag, opens[tag], closes[tag]))
		}
	}
	return diagnostics
}
