// Package tourney is the application layer shared by the HTTP and Telegram
// front ends. It validates input, checks the admin flag and delegates
// persistence to a store.Store.
package tourney

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"tournament-desk/internal/apperr"
	"tournament-desk/internal/export"
	"tournament-desk/internal/models"
	"tournament-desk/internal/normalize"
	"tournament-desk/internal/session"
	"tournament-desk/internal/store"
	"tournament-desk/internal/validate"
)

type Service struct {
	store store.Store
	now   func() time.Time
	newID func() string
}

// New builds a service over st. A nil clock means time.Now.
func New(st store.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: st, now: now, newID: uuid.NewString}
}

func requireAdmin(sess *session.Session) error {
	if !sess.IsAdmin() {
		return apperr.ErrForbidden
	}
	return nil
}

// ---------- Events ----------

// ListEvents returns every event with its derived registration fields,
// soonest first.
func (s *Service) ListEvents(ctx context.Context) ([]models.EventView, error) {
	events, err := s.store.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CountRegistrations(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]models.EventView, 0, len(events))
	for _, ev := range events {
		views = append(views, view(ev, counts[ev.ID]))
	}
	sort.SliceStable(views, func(i, j int) bool {
		a, _ := normalize.CalendarDate(views[i].Date)
		b, _ := normalize.CalendarDate(views[j].Date)
		if !a.Equal(b) {
			return a.Before(b)
		}
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})
	return views, nil
}

func (s *Service) GetEvent(ctx context.Context, id string) (models.EventView, error) {
	ev, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return models.EventView{}, err
	}
	regs, err := s.store.ListRegistrations(ctx, id)
	if err != nil {
		return models.EventView{}, err
	}
	return view(*ev, len(regs)), nil
}

func view(ev models.Event, count int) models.EventView {
	return models.EventView{
		Event:           ev,
		RegisteredCount: count,
		CapacityLabel:   ev.CapacityText(count),
		Full:            ev.CapacityReached(count),
		PreregFeeText:   normalize.FormatEUR(ev.PreregFee),
		NonRegFeeText:   normalize.FormatEUR(ev.NonRegFee),
	}
}

// CreateEvent validates draft and stores it under a fresh id.
func (s *Service) CreateEvent(ctx context.Context, sess *session.Session, draft models.EventDraft) (models.Event, error) {
	if err := requireAdmin(sess); err != nil {
		return models.Event{}, err
	}
	ev, err := validate.Event(draft)
	if err != nil {
		return models.Event{}, err
	}
	now := s.now().UTC()
	ev.ID = s.newID()
	ev.CreatedAt = now
	ev.UpdatedAt = now
	if err := s.store.SaveEvent(ctx, ev); err != nil {
		return models.Event{}, err
	}
	return ev, nil
}

// PutEvent stores draft under a caller-chosen id, keeping the creation
// time of an existing event with that id. Upstream proxies use it to
// replay writes idempotently.
func (s *Service) PutEvent(ctx context.Context, sess *session.Session, id string, draft models.EventDraft) (models.Event, error) {
	if err := requireAdmin(sess); err != nil {
		return models.Event{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return s.CreateEvent(ctx, sess, draft)
	}
	ev, err := validate.Event(draft)
	if err != nil {
		return models.Event{}, err
	}
	now := s.now().UTC()
	ev.ID = id
	ev.CreatedAt = now
	ev.UpdatedAt = now
	existing, err := s.store.GetEvent(ctx, id)
	switch {
	case err == nil:
		ev.CreatedAt = existing.CreatedAt
	case !errors.Is(err, apperr.ErrNotFound):
		return models.Event{}, err
	}
	if err := s.store.SaveEvent(ctx, ev); err != nil {
		return models.Event{}, err
	}
	return ev, nil
}

// UpdateEvent merges patch into the stored event and validates the result
// as a whole. ID and CreatedAt never change.
func (s *Service) UpdateEvent(ctx context.Context, sess *session.Session, id string, patch models.EventPatch) (models.Event, error) {
	if err := requireAdmin(sess); err != nil {
		return models.Event{}, err
	}
	existing, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return models.Event{}, err
	}
	ev, err := validate.Event(validate.ApplyPatch(*existing, patch))
	if err != nil {
		return models.Event{}, err
	}
	ev.ID = existing.ID
	ev.CreatedAt = existing.CreatedAt
	ev.UpdatedAt = s.now().UTC()
	if err := s.store.SaveEvent(ctx, ev); err != nil {
		return models.Event{}, err
	}
	return ev, nil
}

// DeleteEvent removes the event together with its registrations.
func (s *Service) DeleteEvent(ctx context.Context, sess *session.Session, id string) error {
	if err := requireAdmin(sess); err != nil {
		return err
	}
	return s.store.DeleteEvent(ctx, id)
}

// ---------- Registrations ----------

// Register admits a visitor. Capacity and uniqueness are decided by the
// store inside its serialized write.
func (s *Service) Register(ctx context.Context, eventID string, in models.RegistrationInput) (models.Registration, error) {
	reg := models.Registration{
		ID:        s.newID(),
		EventID:   eventID,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		NeuronID:  in.NeuronID,
		CreatedAt: s.now().UTC(),
	}
	return s.store.Register(ctx, eventID, reg)
}

// Unregister removes the registration whose identifier normalizes to the
// same value as neuronID.
func (s *Service) Unregister(ctx context.Context, eventID, neuronID string) error {
	if normalize.Identifier(neuronID) == "" {
		return apperr.Invalid("neuronId", "Neuron ID is required")
	}
	removed, err := s.store.Unregister(ctx, eventID, neuronID)
	if err != nil {
		return err
	}
	if !removed {
		return apperr.ErrNotRegistered
	}
	return nil
}

func (s *Service) ListRegistrations(ctx context.Context, sess *session.Session, eventID string) ([]models.Registration, error) {
	if err := requireAdmin(sess); err != nil {
		return nil, err
	}
	return s.store.ListRegistrations(ctx, eventID)
}

func (s *Service) CountRegistrations(ctx context.Context) (map[string]int, error) {
	return s.store.CountRegistrations(ctx)
}

// ---------- Newsletter ----------

// Subscribe adds email to the newsletter list. It reports false when the
// address was already there.
func (s *Service) Subscribe(ctx context.Context, email string) (bool, error) {
	email = normalize.Email(email)
	if !plausibleEmail(email) {
		return false, apperr.Invalid("email", "enter a valid email address")
	}
	return s.store.Subscribe(ctx, models.Subscriber{Email: email, CreatedAt: s.now().UTC()})
}

// plausibleEmail only rejects obvious typos; delivery is the real check.
func plausibleEmail(email string) bool {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return false
	}
	return !strings.ContainsAny(email, " \t")
}

func (s *Service) SubscriberCount(ctx context.Context) (int, error) {
	return s.store.CountSubscribers(ctx)
}

func (s *Service) ListSubscribers(ctx context.Context, sess *session.Session) ([]models.Subscriber, error) {
	if err := requireAdmin(sess); err != nil {
		return nil, err
	}
	return s.store.ListSubscribers(ctx)
}

// ---------- Exports ----------

// Export is a rendered file ready to download or attach.
type Export struct {
	Name    string
	Content string
}

func (s *Service) ExportRegistrants(ctx context.Context, sess *session.Session, eventID string) (Export, error) {
	ev, regs, err := s.eventWithRegistrations(ctx, sess, eventID)
	if err != nil {
		return Export{}, err
	}
	return Export{Name: export.FileName(ev, "txt"), Content: export.Registrants(ev, regs)}, nil
}

func (s *Service) ExportRegistrantsCSV(ctx context.Context, sess *session.Session, eventID string) (Export, error) {
	ev, regs, err := s.eventWithRegistrations(ctx, sess, eventID)
	if err != nil {
		return Export{}, err
	}
	content, err := export.RegistrantsCSV(regs)
	if err != nil {
		return Export{}, err
	}
	return Export{Name: export.FileName(ev, "csv"), Content: content}, nil
}

func (s *Service) ExportSubscribers(ctx context.Context, sess *session.Session) (Export, error) {
	subs, err := s.ListSubscribers(ctx, sess)
	if err != nil {
		return Export{}, err
	}
	return Export{Name: "subscribers.txt", Content: export.Subscribers(subs)}, nil
}

func (s *Service) eventWithRegistrations(ctx context.Context, sess *session.Session, eventID string) (models.Event, []models.Registration, error) {
	if err := requireAdmin(sess); err != nil {
		return models.Event{}, nil, err
	}
	ev, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return models.Event{}, nil, err
	}
	regs, err := s.store.ListRegistrations(ctx, eventID)
	if err != nil {
		return models.Event{}, nil, err
	}
	return *ev, regs, nil
}
