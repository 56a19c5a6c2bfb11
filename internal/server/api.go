package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"tournament-desk/internal/apperr"
	"tournament-desk/internal/export"
	"tournament-desk/internal/models"
	"tournament-desk/internal/session"
	"tournament-desk/internal/util"
)

// request is an action-tagged body: {"action": "...", ...params}.
type request map[string]json.RawMessage

func (q request) str(key string) string {
	var s string
	_ = json.Unmarshal(q[key], &s)
	return s
}

// decode reads q[key] into dst, reporting a validation error on key.
func (q request) decode(key string, dst any) error {
	raw, found := q[key]
	if !found {
		return apperr.Invalid(key, "missing")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.Invalid(key, "malformed")
	}
	return nil
}

// eventPayload is a create_event body; a non-empty ID makes it an upsert.
type eventPayload struct {
	models.EventDraft
	ID string `json:"id"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var q request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&q); err != nil {
		errorJSON(w, "decode", apperr.Invalid("", "request body must be a JSON object"))
		return
	}
	action := q.str("action")
	ctx := r.Context()
	sess := sessionFrom(ctx)

	var (
		data any
		err  error
	)
	switch action {
	case "login":
		token, newSess, loginErr := s.sessions.Login(q.str("secret"))
		if loginErr != nil {
			writeJSON(w, http.StatusUnauthorized, response{Error: "Wrong admin secret.", Code: apperr.CodeForbidden})
			return
		}
		data = map[string]any{"token": token, "expiresAt": newSess.ExpiresAt}

	case "logout":
		s.sessions.Logout(sess)
		data = true

	case "list_events":
		data, err = s.svc.ListEvents(ctx)

	case "get_event":
		data, err = s.svc.GetEvent(ctx, q.str("eventId"))

	case "sub_count":
		data, err = s.svc.SubscriberCount(ctx)

	case "count_registrations":
		data, err = s.svc.CountRegistrations(ctx)

	case "list_registrations":
		data, err = s.svc.ListRegistrations(ctx, sess, q.str("eventId"))

	case "create_event":
		var p eventPayload
		if err = q.decode("event", &p); err == nil {
			data, err = s.svc.PutEvent(ctx, sess, p.ID, p.EventDraft)
		}

	case "update_event":
		var patch models.EventPatch
		if err = q.decode("patch", &patch); err == nil {
			data, err = s.svc.UpdateEvent(ctx, sess, q.str("eventId"), patch)
		}

	case "delete_event":
		if err = s.svc.DeleteEvent(ctx, sess, q.str("eventId")); err == nil {
			data = true
		}

	case "register":
		var in models.RegistrationInput
		if err = q.decode("registration", &in); err == nil {
			data, err = s.svc.Register(ctx, q.str("eventId"), in)
		}

	case "unregister":
		if err = s.svc.Unregister(ctx, q.str("eventId"), q.str("neuronId")); err == nil {
			data = true
		}

	case "subscribe":
		var created bool
		if created, err = s.svc.Subscribe(ctx, q.str("email")); err == nil {
			data = "subscribed"
			if !created {
				data = "exists"
			}
		}

	case "list_subscribers":
		data, err = s.svc.ListSubscribers(ctx, sess)

	case "export_registrants":
		data, err = s.exportRegistrants(r, sess, q.str("eventId"))

	case "export_subscribers":
		data, err = s.exportSubscribers(r, sess)

	default:
		err = apperr.Invalid("action", fmt.Sprintf("unknown action %q", action))
	}

	if err != nil {
		errorJSON(w, action, err)
		return
	}
	ok(w, data)
}

// exportResult carries the rendered file plus signed links that download
// it again without a session.
type exportResult struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	TextURL string `json:"textUrl"`
	CSVURL  string `json:"csvUrl,omitempty"`
	Mailto  string `json:"mailto"`
}

func (s *Server) exportRegistrants(r *http.Request, sess *session.Session, eventID string) (exportResult, error) {
	out, err := s.svc.ExportRegistrants(r.Context(), sess, eventID)
	if err != nil {
		return exportResult{}, err
	}
	q := url.Values{}
	q.Set("event_id", eventID)
	q.Set("token", util.ExportToken(s.cfg.ExportSecret, util.EventScope(eventID)))
	base := s.publicURL(r)
	return exportResult{
		Name:    out.Name,
		Content: out.Content,
		TextURL: base + "/export/registrants.txt?" + q.Encode(),
		CSVURL:  base + "/export/registrants.csv?" + q.Encode(),
		Mailto:  export.MailtoDraft("", out.Name, out.Content),
	}, nil
}

func (s *Server) exportSubscribers(r *http.Request, sess *session.Session) (exportResult, error) {
	out, err := s.svc.ExportSubscribers(r.Context(), sess)
	if err != nil {
		return exportResult{}, err
	}
	q := url.Values{}
	q.Set("token", util.ExportToken(s.cfg.ExportSecret, util.SubscribersScope))
	return exportResult{
		Name:    out.Name,
		Content: out.Content,
		TextURL: s.publicURL(r) + "/export/subscribers.txt?" + q.Encode(),
		Mailto:  export.MailtoDraft("", "Newsletter subscribers", out.Content),
	}, nil
}

func (s *Server) publicURL(r *http.Request) string {
	if s.cfg.BasePublicURL != "" {
		return s.cfg.BasePublicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
