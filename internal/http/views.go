package httpx

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

func parseViews() (*template.Template, error) {
	return template.New("base").Funcs(template.FuncMap{
		"formatTime": formatTime,
		"deref": func(n *int) int {
			if n == nil {
				return 0
			}
			return *n
		},
		"currentYear": func() int { return time.Now().Year() },
	}).ParseFS(templateFS, "templates/*.html")
}

func formatTime(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format("2006-01-02 15:04")
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.UTC().Format("2006-01-02 15:04")
	default:
		return ""
	}
}

// render executes tpl into a buffer so a template failure never leaves a half-written page.
func (r *Router) render(w http.ResponseWriter, req *http.Request, status int, tpl string, data map[string]any) {
	var buf bytes.Buffer
	if err := r.views.ExecuteTemplate(&buf, tpl, data); err != nil {
		r.logger.Error("template render failed", "template", tpl, "path", req.URL.Path, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (r *Router) renderError(w http.ResponseWriter, req *http.Request, status int, title, message string) {
	if status >= http.StatusInternalServerError {
		r.logger.Error("view error", "status", status, "path", req.URL.Path, "message", message)
	}
	r.render(w, req, status, "error", map[string]any{
		"Title":   title,
		"Message": message,
	})
}

func flashFromRequest(req *http.Request) string {
	return strings.TrimSpace(req.URL.Query().Get("flash"))
}

func redirectWithFlash(w http.ResponseWriter, req *http.Request, target, message string) {
	if strings.TrimSpace(target) == "" {
		target = "/"
	}
	if strings.TrimSpace(message) == "" {
		http.Redirect(w, req, target, http.StatusSeeOther)
		return
	}
	u, err := url.Parse(target)
	if err != nil {
		http.Redirect(w, req, "/", http.StatusSeeOther)
		return
	}
	q := u.Query()
	q.Set("flash", message)
	u.RawQuery = q.Encode()
	http.Redirect(w, req, u.String(), http.StatusSeeOther)
}
