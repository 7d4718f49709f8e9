package enforcement

import (
	"log/slog"
	"net/http"
	"strconv"
)

const maxDocumentBytes = 4 << 20

// Handler exposes the server-side sweep over HTTP.
type Handler struct {
	enf *Enforcer
	log *slog.Logger
}

// NewHandler returns a Handler for enf.
func NewHandler(enf *Enforcer, log *slog.Logger) *Handler {
	return &Handler{enf: enf, log: log}
}

// Sweep handles POST /enforcement/sweep. The body is an HTML document; the
// response is the same document with ads and suspicious links removed. The
// number of removed elements is returned in X-Navguard-Removed.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxDocumentBytes)
	html, removed, err := h.enf.SweepHTML(body)
	if err != nil {
		h.log.Debug("sweep rejected", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	for _, rm := range removed {
		h.log.Debug("element removed",
			slog.String("event", "sweep.remove"),
			slog.String("rule", rm.Rule),
			slog.String("tag", rm.Tag),
			slog.String("href", rm.Href))
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Navguard-Removed", strconv.Itoa(len(removed)))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(html))
}
