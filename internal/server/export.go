package server

import (
	"net/http"

	"tournament-desk/internal/session"
	"tournament-desk/internal/tourney"
	"tournament-desk/internal/util"
)

// exportSession stands in for the admin who was handed a signed link.
var exportSession = &session.Session{ID: "export-link", Admin: true}

// CSV/TXT export (admin-only link with token = HMAC)
func (s *Server) handleExportRegistrants(asCSV bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := r.URL.Query().Get("event_id")
		token := r.URL.Query().Get("token")
		if eventID == "" || token == "" {
			http.Error(w, "event_id and token required", http.StatusBadRequest)
			return
		}
		if !util.ValidExportToken(s.cfg.ExportSecret, util.EventScope(eventID), token) {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		var (
			out tourney.Export
			err error
		)
		if asCSV {
			out, err = s.svc.ExportRegistrantsCSV(r.Context(), exportSession, eventID)
		} else {
			out, err = s.svc.ExportRegistrants(r.Context(), exportSession, eventID)
		}
		if err != nil {
			http.Error(w, err.Error(), statusOf(err))
			return
		}
		contentType := "text/plain; charset=utf-8"
		if asCSV {
			contentType = "text/csv; charset=utf-8"
		}
		download(w, contentType, out)
	}
}

func (s *Server) handleExportSubscribers(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token required", http.StatusBadRequest)
		return
	}
	if !util.ValidExportToken(s.cfg.ExportSecret, util.SubscribersScope, token) {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}
	out, err := s.svc.ExportSubscribers(r.Context(), exportSession)
	if err != nil {
		http.Error(w, err.Error(), statusOf(err))
		return
	}
	download(w, "text/plain; charset=utf-8", out)
}

func download(w http.ResponseWriter, contentType string, out tourney.Export) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+out.Name+`"`)
	_, _ = w.Write([]byte(out.Content))
}
