package httpx

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// requireUserID rejects id-bearing requests whose id is blank before any handler runs.
func (r *Router) requireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if userIDParam(req) == "" {
			if isAPIRequest(req) {
				writeError(w, http.StatusBadRequest, msgUserIDRequired)
				return
			}
			r.renderError(w, req, http.StatusBadRequest, "Bad Request", msgUserIDRequired)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func userIDParam(req *http.Request) string {
	return strings.TrimSpace(chi.URLParam(req, "id"))
}
