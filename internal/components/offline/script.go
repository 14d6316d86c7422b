package offline

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"io"
	"net/http"
	"text/template"
)

//go:embed sw.js.tmpl
var scriptSource string

var scriptTemplate = template.Must(template.New("sw.js").Funcs(template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}).Parse(scriptSource))

// RenderScript writes the browser worker script for cfg.
func RenderScript(w io.Writer, cfg Config) error {
	return scriptTemplate.Execute(w, cfg)
}

// ScriptHandler serves the rendered worker script. The script is rendered
// once; the browser re-checks it on every navigation.
func ScriptHandler(cfg Config) (http.Handler, error) {
	var buf bytes.Buffer
	if err := RenderScript(&buf, cfg); err != nil {
		return nil, err
	}
	body := buf.Bytes()
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Service-Worker-Allowed", "/")
		_, _ = w.Write(body)
	}), nil
}
