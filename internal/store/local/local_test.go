package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"tournament-desk/internal/apperr"
	"tournament-desk/internal/models"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tourney.db")
	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestEventUpsertAndDelete(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	ev := models.Event{ID: "e1", Title: "Cup", PlayerCap: 4}
	if err := s.SaveEvent(ctx, ev); err != nil {
		t.Fatal(err)
	}
	ev.Title = "Cup II"
	if err := s.SaveEvent(ctx, ev); err != nil {
		t.Fatal(err)
	}

	events, err := s.ListEvents(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Title != "Cup II" {
		t.Errorf("ListEvents() = %+v, expected one upserted event", events)
	}

	if _, err := s.Register(ctx, "e1", models.Registration{ID: "r1", FirstName: "Ana", LastName: "B", NeuronID: "n1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteEvent(ctx, "e1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetEvent(ctx, "e1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("GetEvent after delete error = %v", err)
	}
	regs, _ := s.ListRegistrations(ctx, "e1")
	if len(regs) != 0 {
		t.Errorf("registrations survived delete: %+v", regs)
	}
	if err := s.DeleteEvent(ctx, "e1"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second DeleteEvent error = %v", err)
	}
}

func TestRegisterEnforcesLedger(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	if err := s.SaveEvent(ctx, models.Event{ID: "e1", PlayerCap: 2}); err != nil {
		t.Fatal(err)
	}

	r, err := s.Register(ctx, "e1", models.Registration{ID: "r1", FirstName: "Ana", LastName: "Babić", NeuronID: "abc 123"})
	if err != nil {
		t.Fatal(err)
	}
	if r.NeuronID != "ABC123" {
		t.Errorf("stored NeuronID = %q", r.NeuronID)
	}
	if _, err := s.Register(ctx, "e1", models.Registration{ID: "r2", FirstName: "Ivo", LastName: "H", NeuronID: "ABC123"}); !errors.Is(err, apperr.ErrDuplicateRegistrant) {
		t.Errorf("duplicate error = %v", err)
	}
	if _, err := s.Register(ctx, "e1", models.Registration{ID: "r3", FirstName: "Ivo", LastName: "H", NeuronID: "X"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Register(ctx, "e1", models.Registration{ID: "r4", FirstName: "Mia", LastName: "K", NeuronID: "Y"}); !errors.Is(err, apperr.ErrCapacityReached) {
		t.Errorf("over-cap error = %v", err)
	}
	if _, err := s.Register(ctx, "missing", models.Registration{FirstName: "A", LastName: "B", NeuronID: "C"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown event error = %v", err)
	}

	counts, err := s.CountRegistrations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts["e1"] != 2 {
		t.Errorf("CountRegistrations() = %v", counts)
	}
}

func TestConcurrentRegisterNeverExceedsCap(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	if err := s.SaveEvent(ctx, models.Event{ID: "e1", PlayerCap: 5}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// half the attempts reuse an identifier
			_, err := s.Register(ctx, "e1", models.Registration{
				ID: fmt.Sprintf("r%d", i), FirstName: "P", LastName: "L", NeuronID: fmt.Sprintf("id%d", i%10),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	admitted := 0
	for err := range errs {
		if err == nil {
			admitted++
		} else if !errors.Is(err, apperr.ErrCapacityReached) && !errors.Is(err, apperr.ErrDuplicateRegistrant) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	regs, _ := s.ListRegistrations(ctx, "e1")
	if admitted != 5 || len(regs) != 5 {
		t.Errorf("admitted %d, stored %d, expected 5", admitted, len(regs))
	}
	seen := map[string]bool{}
	for _, r := range regs {
		if seen[r.NeuronID] {
			t.Errorf("duplicate %s stored", r.NeuronID)
		}
		seen[r.NeuronID] = true
	}
}

func TestUnregister(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	_ = s.SaveEvent(ctx, models.Event{ID: "e1", PlayerCap: 2})
	if _, err := s.Register(ctx, "e1", models.Registration{FirstName: "Ana", LastName: "B", NeuronID: "ABC123"}); err != nil {
		t.Fatal(err)
	}

	removed, err := s.Unregister(ctx, "e1", "abc 123")
	if err != nil || !removed {
		t.Errorf("Unregister() = %v, %v", removed, err)
	}
	removed, err = s.Unregister(ctx, "e1", "abc 123")
	if err != nil || removed {
		t.Errorf("second Unregister() = %v, %v", removed, err)
	}
	if _, err := s.Unregister(ctx, "e1", " "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank Unregister error = %v", err)
	}
}

func TestSubscribeDeduplicates(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	created, err := s.Subscribe(ctx, models.Subscriber{Email: "a@x.hr"})
	if err != nil || !created {
		t.Fatalf("Subscribe() = %v, %v", created, err)
	}
	created, err = s.Subscribe(ctx, models.Subscriber{Email: "a@x.hr"})
	if err != nil || created {
		t.Errorf("repeat Subscribe() = %v, %v", created, err)
	}
	n, _ := s.CountSubscribers(ctx)
	if n != 1 {
		t.Errorf("CountSubscribers() = %d", n)
	}
}

func TestOpenMigratesLegacyData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	seed := []struct{ key, value string }{
		{keyEvents, `[{"id":"e1","title":"Cup","date":"1.3.2026","cap":"2","swiss":"4","price":5}]`},
		{regsKey("e1"), `[{"id":"r1","firstName":"Ana","lastName":"B","neuronId":"ab c"},{"id":"r2","firstName":"Ana","lastName":"B","neuronId":"ABC"}]`},
		{keySubscribers, `["A@x.hr","a@x.hr","b@y.hr"]`},
	}
	if _, err := db.Exec(`CREATE TABLE kv (key TEXT PRIMARY KEY, value TEXT NOT NULL);`); err != nil {
		t.Fatal(err)
	}
	for _, kv := range seed {
		if _, err := db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?);`, kv.key, kv.value); err != nil {
			t.Fatal(err)
		}
	}
	db.Close()

	s, err := Open(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	ev, err := s.GetEvent(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if ev.PlayerCap != 2 || ev.SwissRounds != 4 || ev.PreregFee != 5 || ev.Date != "01/03/26" {
		t.Errorf("migrated event = %+v", ev)
	}
	regs, _ := s.ListRegistrations(ctx, "e1")
	if len(regs) != 1 || regs[0].ID != "r1" || regs[0].NeuronID != "ABC" || regs[0].EventID != "e1" {
		t.Errorf("migrated registrations = %+v", regs)
	}
	subs, _ := s.ListSubscribers(ctx)
	if len(subs) != 2 || subs[0].Email != "a@x.hr" {
		t.Errorf("migrated subscribers = %+v", subs)
	}

	// legacy duplicate check now sees the normalized id
	if _, err := s.Register(ctx, "e1", models.Registration{FirstName: "X", LastName: "Y", NeuronID: "abc"}); !errors.Is(err, apperr.ErrDuplicateRegistrant) {
		t.Errorf("Register after migration error = %v", err)
	}
}
