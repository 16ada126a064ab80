package executor

import (
	"path"
	"strings"

	"golang.org/x/net/html"

	"gamesmith/internal/types"
)

// imageExtensions are reference targets that may be pending placeholders
// rather than genuine external files.
var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".svg": true,
}

// checkExternalRefs walks every src/href attribute in the structure fragment
// and rejects the batch when one points at a file the sandbox cannot
// provide. Network URLs, data and blob URLs, anchors, and the session's own
// asset store are fine; so is a bare image name that matches a generated or
// planned asset, since that is a placeholder awaiting substitution. A
// relative script or stylesheet is never fine.
func checkExternalRefs(structure string, allowedNames map[string]bool) error {
	if strings.TrimSpace(structure) == "" {
		return nil
	}

	z := html.NewTokenizer(strings.NewReader(structure))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return nil
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		if !hasAttr {
			continue
		}
		tag := string(name)
		for {
			key, val, more := z.TagAttr()
			attr := string(key)
			if attr == "src" || attr == "href" {
				ref := strings.TrimSpace(string(val))
				if !refIsAllowed(ref, allowedNames) {
					return types.Faultf(types.ClassInvalid,
						"structure references external file %q via <%s %s=...>; generated code must be self-contained", ref, tag, attr)
				}
			}
			if !more {
				break
			}
		}
	}
}

func refIsAllowed(ref string, allowedNames map[string]bool) bool {
	if ref == "" || strings.HasPrefix(ref, "#") {
		return true
	}
	lower := strings.ToLower(ref)
	for _, prefix := range []string{"http://", "https://", "data:", "blob:", "about:"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	if strings.HasPrefix(ref, "/assets/") {
		return true
	}

	ext := strings.ToLower(path.Ext(ref))
	if imageExtensions[ext] {
		base := strings.TrimSuffix(path.Base(ref), path.Ext(ref))
		return allowedNames[base]
	}
	return false
}
