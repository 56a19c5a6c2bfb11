package tourney

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tournament-desk/internal/apperr"
	"tournament-desk/internal/models"
	"tournament-desk/internal/session"
	"tournament-desk/internal/store/local"
)

var admin = &session.Session{ID: "test", Admin: true}

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := local.Open(context.Background(), filepath.Join(t.TempDir(), "tourney.db"))
	if err != nil {
		t.Fatalf("local.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	clock := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	svc := New(st, func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	})
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return svc
}

func draft(title, date, playerCap string) models.EventDraft {
	img := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	return models.EventDraft{
		Title:               title,
		Location:            "Zagreb",
		Date:                date,
		PreregStartDate:     "01/01/26",
		PreregEndDate:       "15/02/26",
		RegStartTime:        "09:00",
		TournamentStartTime: "10:00",
		PreregFee:           "10",
		NonRegFee:           "12,50",
		PlayerCap:           playerCap,
		SwissRounds:         "4",
		TopCut:              "Top 4",
		ImageDataURL:        "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
	}
}

func TestAdminOnlyOperations(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	visitor := (*session.Session)(nil)

	if _, err := svc.CreateEvent(ctx, visitor, draft("Cup", "01/03/26", "8")); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("CreateEvent as visitor error = %v", err)
	}
	ev, err := svc.CreateEvent(ctx, admin, draft("Cup", "01/03/26", "8"))
	if err != nil {
		t.Fatal(err)
	}

	_, errUpdate := svc.UpdateEvent(ctx, visitor, ev.ID, models.EventPatch{})
	_, errRegs := svc.ListRegistrations(ctx, visitor, ev.ID)
	_, errSubs := svc.ListSubscribers(ctx, visitor)
	_, errExportRegs := svc.ExportRegistrants(ctx, visitor, ev.ID)
	_, errExportSubs := svc.ExportSubscribers(ctx, visitor)
	checks := map[string]error{
		"UpdateEvent":       errUpdate,
		"DeleteEvent":       svc.DeleteEvent(ctx, visitor, ev.ID),
		"ListRegistrations": errRegs,
		"ListSubscribers":   errSubs,
		"ExportRegistrants": errExportRegs,
		"ExportSubscribers": errExportSubs,
	}
	for name, err := range checks {
		if !errors.Is(err, apperr.ErrForbidden) {
			t.Errorf("%s as visitor error = %v", name, err)
		}
	}
}

func TestCapacityIsEnforced(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ev, err := svc.CreateEvent(ctx, admin, draft("Cup", "01/03/26", "2"))
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"N1", "N2"} {
		if _, err := svc.Register(ctx, ev.ID, models.RegistrationInput{FirstName: "A", LastName: "B", NeuronID: id}); err != nil {
			t.Fatalf("Register(%s) error = %v", id, err)
		}
	}
	_, err = svc.Register(ctx, ev.ID, models.RegistrationInput{FirstName: "C", LastName: "D", NeuronID: "N3"})
	if !errors.Is(err, apperr.ErrCapacityReached) {
		t.Errorf("third Register error = %v", err)
	}

	got, err := svc.GetEvent(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.RegisteredCount != 2 || !got.Full || got.CapacityLabel != "2 / 2" {
		t.Errorf("GetEvent() view = count %d full %v label %q", got.RegisteredCount, got.Full, got.CapacityLabel)
	}
}

func TestDuplicateLeavesCountUnchanged(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ev, _ := svc.CreateEvent(ctx, admin, draft("Cup", "01/03/26", "8"))

	_, _ = svc.Register(ctx, ev.ID, models.RegistrationInput{FirstName: "Ana", LastName: "B", NeuronID: "ABC123"})
	_, err := svc.Register(ctx, ev.ID, models.RegistrationInput{FirstName: "Ivo", LastName: "H", NeuronID: " abc123 "})
	if !errors.Is(err, apperr.ErrDuplicateRegistrant) {
		t.Errorf("duplicate Register error = %v", err)
	}
	counts, _ := svc.CountRegistrations(ctx)
	if counts[ev.ID] != 1 {
		t.Errorf("count after duplicate = %d", counts[ev.ID])
	}
}

func TestUnregisterMatchesNormalizedID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ev, _ := svc.CreateEvent(ctx, admin, draft("Cup", "01/03/26", "8"))

	if _, err := svc.Register(ctx, ev.ID, models.RegistrationInput{FirstName: "Ana", LastName: "B", NeuronID: "ABC123"}); err != nil {
		t.Fatal(err)
	}
	if err := svc.Unregister(ctx, ev.ID, "abc 123"); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	if err := svc.Unregister(ctx, ev.ID, "abc 123"); !errors.Is(err, apperr.ErrNotRegistered) {
		t.Errorf("second Unregister error = %v", err)
	}
	if err := svc.Unregister(ctx, ev.ID, "   "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank Unregister error = %v", err)
	}
}

func TestExportRegistrants(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ev, _ := svc.CreateEvent(ctx, admin, draft("Cup", "01/03/26", "8"))
	_, _ = svc.Register(ctx, ev.ID, models.RegistrationInput{FirstName: "Ana", LastName: "Babić", NeuronID: "n1"})

	out, err := svc.ExportRegistrants(ctx, admin, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if expected := "Cup | 01/03/26 | Zagreb\nAna-Babić-N1\n"; out.Content != expected {
		t.Errorf("ExportRegistrants() = %q, expected %q", out.Content, expected)
	}
	if out.Name != "cup_01-03-26.txt" {
		t.Errorf("export name = %q", out.Name)
	}

	csv, err := svc.ExportRegistrantsCSV(ctx, admin, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(csv.Content, "first_name,last_name,neuron_id,registered_at\nAna,Babić,N1,") {
		t.Errorf("ExportRegistrantsCSV() = %q", csv.Content)
	}
}

func TestUpdateEventKeepsIdentity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	ev, _ := svc.CreateEvent(ctx, admin, draft("Cup", "01/03/26", "8"))

	title := "Cup Finals"
	updated, err := svc.UpdateEvent(ctx, admin, ev.ID, models.EventPatch{Title: &title})
	if err != nil {
		t.Fatal(err)
	}
	if updated.ID != ev.ID || !updated.CreatedAt.Equal(ev.CreatedAt) || !updated.UpdatedAt.After(ev.UpdatedAt) {
		t.Errorf("UpdateEvent() identity changed: %+v vs %+v", updated, ev)
	}
	if updated.Title != "Cup Finals" || updated.PlayerCap != 8 {
		t.Errorf("UpdateEvent() = %+v", updated)
	}

	bad := "31/02/26"
	if _, err := svc.UpdateEvent(ctx, admin, ev.ID, models.EventPatch{Date: &bad}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("invalid patch error = %v", err)
	}
	if _, err := svc.UpdateEvent(ctx, admin, "missing", models.EventPatch{Title: &title}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown id error = %v", err)
	}
}

func TestPutEventPreservesCreatedAt(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.PutEvent(ctx, admin, "fixed", draft("Cup", "01/03/26", "8"))
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.PutEvent(ctx, admin, "fixed", draft("Cup II", "01/03/26", "8"))
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != "fixed" || !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("PutEvent() = %+v, first %+v", second, first)
	}
	events, _ := svc.ListEvents(ctx)
	if len(events) != 1 || events[0].Title != "Cup II" {
		t.Errorf("ListEvents() = %+v", events)
	}
}

func TestListEventsSortedWithViews(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, _ = svc.CreateEvent(ctx, admin, draft("Later", "20/03/26", "8"))
	_, _ = svc.CreateEvent(ctx, admin, draft("Sooner", "01/03/26", "8"))

	views, err := svc.ListEvents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 2 || views[0].Title != "Sooner" || views[1].Title != "Later" {
		t.Fatalf("ListEvents() order = %+v", views)
	}
	if views[0].NonRegFeeText != "12,50 €" || views[0].CapacityLabel != "0 / 8" || views[0].Full {
		t.Errorf("view fields = %q %q %v", views[0].NonRegFeeText, views[0].CapacityLabel, views[0].Full)
	}
}

func TestSubscribe(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		input   string
		created bool
		wantErr bool
		desc    string
	}{
		{" Ana@Example.com ", true, false, "new address is normalized"},
		{"ana@example.com", false, false, "same address differently cased"},
		{"not-an-email", false, true, "missing @"},
		{"a@b@c", false, true, "two @"},
		{"", false, true, "empty"},
	}
	for _, test := range tests {
		created, err := svc.Subscribe(ctx, test.input)
		if (err != nil) != test.wantErr || created != test.created {
			t.Errorf("%s: Subscribe(%q) = %v, %v", test.desc, test.input, created, err)
		}
	}

	if n, _ := svc.SubscriberCount(ctx); n != 1 {
		t.Errorf("SubscriberCount() = %d", n)
	}
	out, err := svc.ExportSubscribers(ctx, admin)
	if err != nil || out.Content != "ana@example.com\n" {
		t.Errorf("ExportSubscribers() = %q, %v", out.Content, err)
	}
}
