package control

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/labstack/echo/v4"
)

var page = template.Must(template.New("index").Funcs(template.FuncMap{
	"deref": func(b *bool) bool { return b != nil && *b },
}).Parse(`<!doctype html>
<html>
<head><title>audiograph</title></head>
<body>
<h2>audiograph</h2>

<form method="post">
{{- if .Toslink}}
<p>Toslink <button type="submit" name="toslink" value="toslink">{{.Toslink}}</button></p>
{{- end}}
{{- if .Chrome}}
<p>Chrome to Chat <button type="submit" name="chrome" value="chrome">{{if deref .Chrome}}On{{else}}Off{{end}}</button></p>
{{- end}}
<br />
<button type="submit" name="shutdown" value="shutdown">Shutdown</button>
</form>

<p>Activation: {{.Activation}}</p>
<table>
{{- range .Streams}}
<tr><td>{{.Name}}</td><td>{{.State}}</td><td>{{if .Connected}}connected{{end}}</td></tr>
{{- end}}
{{- range $name, $l := .Levels}}
<tr><td>{{$name}}</td><td>{{printf "%.1f dBFS" $l.DBFS}}</td></tr>
{{- end}}
{{- range .Devices}}
<tr><td>{{.Name}} {{.Direction}}</td><td>{{.State}}</td></tr>
{{- end}}
</table>
{{- with .Metrics}}
<p>{{.Ticks}} ticks, average {{.AvgTick}}, peak {{.PeakTick}}</p>
{{- end}}
</body>
</html>
`))

func (s *Server) render(c echo.Context) error {
	var buf bytes.Buffer
	if err := page.Execute(&buf, s.snapshot()); err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}
