package api

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gamesmith/internal/assembler"
)

// previewTemplate hosts the game in a sandboxed iframe and relays the
// instrumentation's postMessage reports onto the session's WebSocket. The
// iframe gets no same-origin permission, so the game cannot reach this page
// or the API; postMessage is its only way out.
var previewTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
  html, body { margin: 0; padding: 0; height: 100%; background: #111; }
  iframe { border: 0; width: 100%; height: 100%; display: block; }
</style>
</head>
<body>
<iframe id="game" sandbox="{{.Sandbox}}" src="/api/sessions/{{.SessionID}}/document" title="{{.Title}}"></iframe>
<script>
(function () {
  var proto = location.protocol === 'https:' ? 'wss' : 'ws';
  var ws = null;
  var pending = [];

  function connect() {
    ws = new WebSocket(proto + '://' + location.host + '/api/sessions/{{.SessionID}}/events');
    ws.onopen = function () {
      while (pending.length > 0) { ws.send(pending.shift()); }
    };
    ws.onclose = function () { setTimeout(connect, 2000); };
  }
  connect();

  window.addEventListener('message', function (event) {
    var data = event.data;
    if (!data || (data.kind !== 'runtime_error' && data.kind !== 'structural_warning')) {
      return;
    }
    var frame = JSON.stringify({ kind: data.kind, message: String(data.message || '') });
    if (ws && ws.readyState === WebSocket.OPEN) {
      ws.send(frame);
    } else {
      pending.push(frame);
    }
  });
})();
</script>
</body>
</html>
`))

type previewData struct {
	SessionID string
	Title     string
	Sandbox   string
}

// handlePreview serves the host page for a session's game.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		WriteFault(w, err)
		return
	}

	title := "gamesmith preview"
	if sess.Plan != nil && sess.Plan.Title != "" {
		title = sess.Plan.Title
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	previewTemplate.Execute(w, previewData{
		SessionID: sess.ID,
		Title:     title,
		Sandbox:   assembler.SandboxPermissions,
	})
}
