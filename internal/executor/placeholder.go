package executor

import (
	"fmt"
	"strings"

	"gamesmith/internal/session"
)

// Placeholder substitution. Generated code refers to assets by bare name in
// a handful of literal forms; once an image exists, every form is rewritten
// to the stored URL. The ".png" forms go first so the bare-name pass cannot
// split them.
//
// Script and structure context keep the surrounding quotes; style context
// always produces url('...') because that is the only form CSS accepts.

// substituteFragments rewrites placeholders in all three fragments, in
// generation order for determinism.
func substituteFragments(fragments *session.Fragments, names []string, urls map[string]string) {
	for _, name := range names {
		url := urls[name]
		fragments.Structure = substituteCodeOne(fragments.Structure, name, url)
		fragments.Behavior = substituteCodeOne(fragments.Behavior, name, url)
		fragments.Style = substituteStyleOne(fragments.Style, name, url)
	}
}

// substituteCode rewrites placeholders in a code/markup string.
func substituteCode(text string, names []string, urls map[string]string) string {
	for _, name := range names {
		text = substituteCodeOne(text, name, urls[name])
	}
	return text
}

func substituteCodeOne(text, name, url string) string {
	if text == "" {
		return text
	}
	replacements := []struct{ from, to string }{
		{fmt.Sprintf("'%s.png'", name), fmt.Sprintf("'%s'", url)},
		{fmt.Sprintf(`"%s.png"`, name), fmt.Sprintf(`"%s"`, url)},
		{fmt.Sprintf("'%s'", name), fmt.Sprintf("'%s'", url)},
		{fmt.Sprintf(`"%s"`, name), fmt.Sprintf(`"%s"`, url)},
		{fmt.Sprintf("{{%s}}", name), url},
	}
	for _, r := range replacements {
		text = strings.ReplaceAll(text, r.from, r.to)
	}
	return text
}

func substituteStyleOne(text, name, url string) string {
	if text == "" {
		return text
	}
	wrapped := fmt.Sprintf("url('%s')", url)
	replacements := []struct{ from, to string }{
		// url(...) forms collapse to one canonical wrapped URL so a second
		// pass cannot double-wrap them.
		{fmt.Sprintf("url('%s.png')", name), wrapped},
		{fmt.Sprintf(`url("%s.png")`, name), wrapped},
		{fmt.Sprintf("url(%s.png)", name), wrapped},
		{fmt.Sprintf("url('%s')", name), wrapped},
		{fmt.Sprintf(`url("%s")`, name), wrapped},
		{fmt.Sprintf("url(%s)", name), wrapped},
		{fmt.Sprintf("url({{%s}})", name), wrapped},
		// Standalone forms become wrapped URLs outright.
		{fmt.Sprintf("'%s.png'", name), wrapped},
		{fmt.Sprintf(`"%s.png"`, name), wrapped},
		{fmt.Sprintf("'%s'", name), wrapped},
		{fmt.Sprintf(`"%s"`, name), wrapped},
		{fmt.Sprintf("{{%s}}", name), wrapped},
	}
	for _, r := range replacements {
		text = strings.ReplaceAll(text, r.from, r.to)
	}
	return text
}
