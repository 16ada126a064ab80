// Package assembler builds the runnable preview document from the three
// session fragments and reports structural diagnostics. Assembly is a pure
// function: same fragments in, byte-identical document out, and it never
// fails outright. Malformed fragments degrade to a best-effort document
// plus diagnostics so the preview still renders partial content.
package assembler

import (
	"strings"
)

// SandboxPermissions is the iframe sandbox attribute value the preview host
// must use. The document gets no access to the host page or its cookies but
// keeps script execution, form interaction, pointer capture, and popups,
// which generated games rely on.
const SandboxPermissions = "allow-scripts allow-forms allow-pointer-lock allow-popups"

// baselineResets neutralize browser default spacing and clamp the viewport
// so full-screen canvases do not scroll.
const baselineResets = "html, body { margin: 0; padding: 0; overflow: hidden; }"

// instrumentationScript runs inside the sandboxed document. It forwards
// uncaught errors and unhandled rejections to the hosting context as
// {kind: "runtime_error", message}, and after load checks for signs of
// corrupted markup, forwarded as {kind: "structural_warning", message}.
// The document always carries exactly two scripts of its own, the
// instrumentation and the behavior wrapper, which is why the load check
// treats a third script as a misplaced behavior block.
const instrumentationScript = `(function () {
  function report(kind, message) {
    try {
      parent.postMessage({ kind: kind, message: String(message) }, '*');
    } catch (e) {}
  }
  window.addEventListener('error', function (event) {
    report('runtime_error', event.message || 'unknown script error');
  });
  window.addEventListener('unhandledrejection', function (event) {
    var reason = event.reason;
    report('runtime_error', 'Unhandled rejection: ' + (reason && reason.message ? reason.message : reason));
  });
  window.addEventListener('load', function () {
    if (!document.querySelector('[id]')) {
      report('structural_warning', 'no uniquely identified elements found; markup may be corrupted');
    }
    if (document.scripts.length > 2) {
      report('structural_warning', 'multiple behavior blocks detected in the document');
    }
    if (document.body && document.body.getElementsByTagName('style').length > 0) {
      report('structural_warning', 'style block found in body content');
    }
  });
})();`

// Assemble combines the three fragments into one executable document.
// The returned diagnostics list is empty for clean fragments; it never
// reports an error condition that blocked assembly, because none do.
func Assemble(structure, style, behavior string) (string, []string) {
	diagnostics := checkWrapperMarkup(structure)
	diagnostics = append(diagnostics, checkMisplacedBlocks(structure)...)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
	b.WriteString("<style>\n")
	b.WriteString(baselineResets)
	b.WriteString("\n")
	if style != "" {
		b.WriteString(style)
		b.WriteString("\n")
	}
	b.WriteString("</style>\n</head>\n<body>\n")
	if structure != "" {
		b.WriteString(structure)
		b.WriteString("\n")
	}
	b.WriteString("<script>\n")
	b.WriteString(instrumentationScript)
	b.WriteString("\n</script>\n")
	b.WriteString("<script>\n")
	if behavior != "" {
		b.WriteString(behavior)
		b.WriteString("\n")
	}
	b.WriteString("</script>\n</body>\n</html>\n")
	document := b.String()

	diagnostics = append(diagnostics, CheckTagBalance(document)...)
	return document, diagnostics
}
