// Package local is the single-node key-value backend: namespaced keys
// holding JSON collections, kept in an SQLite file.
package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"tournament-desk/internal/apperr"
	"tournament-desk/internal/ledger"
	"tournament-desk/internal/migrate"
	"tournament-desk/internal/models"
	"tournament-desk/internal/normalize"
	"tournament-desk/internal/store"
)

const (
	keySchema      = "tourney:schema"
	keyEvents      = "tourney:events"
	keySubscribers = "tourney:subs"
	keyRegsPrefix  = "tourney:regs:"
)

func regsKey(eventID string) string { return keyRegsPrefix + eventID }

// DBorTx lets the key helpers run on the pool or inside a transaction.
type DBorTx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store serializes every write through one mutex-guarded transaction, so
// admission checks and the append they guard never interleave.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (or creates) the database file at path and migrates stored
// collections to the current schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	// one connection: SQLite allows a single writer anyway
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

var _ store.Store = (*Store)(nil)

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init(ctx context.Context) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`); err != nil {
			return fmt.Errorf("create kv table: %w", err)
		}
		return migrateTx(ctx, tx)
	})
}

// write runs fn inside a transaction while holding the store mutex.
func (s *Store) write(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &apperr.TransportError{Op: "begin", Err: err}
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return &apperr.TransportError{Op: "commit", Err: err}
	}
	return nil
}

// getJSON decodes the value at key into dst; false when the key is absent.
func getJSON(ctx context.Context, q DBorTx, key string, dst any) (bool, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?;`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, &apperr.TransportError{Op: "get " + key, Err: err}
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func putJSON(ctx context.Context, q DBorTx, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value;`, key, string(raw))
	if err != nil {
		return &apperr.TransportError{Op: "put " + key, Err: err}
	}
	return nil
}

func del(ctx context.Context, q DBorTx, key string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM kv WHERE key = ?;`, key); err != nil {
		return &apperr.TransportError{Op: "delete " + key, Err: err}
	}
	return nil
}

// migrateTx rewrites legacy event records once and stamps the schema.
func migrateTx(ctx context.Context, tx *sql.Tx) error {
	var version string
	if _, err := getJSON(ctx, tx, keySchema, &version); err != nil {
		return err
	}
	v, _ := strconv.Atoi(version)
	if !migrate.Needed(v) {
		return nil
	}

	var raws []map[string]any
	if _, err := getJSON(ctx, tx, keyEvents, &raws); err != nil {
		return err
	}
	events, errs := migrate.Events(raws)
	for _, err := range errs {
		log.Printf("WARN: dropping stored event: %v", err)
	}
	if err := putJSON(ctx, tx, keyEvents, events); err != nil {
		return err
	}

	for _, ev := range events {
		var regs []models.Registration
		if _, err := getJSON(ctx, tx, regsKey(ev.ID), &regs); err != nil {
			return err
		}
		regs, dropped := migrate.Registrations(ev.ID, regs)
		if dropped > 0 {
			log.Printf("WARN: dropped %d duplicate registrations of event %s", dropped, ev.ID)
		}
		if err := putJSON(ctx, tx, regsKey(ev.ID), regs); err != nil {
			return err
		}
	}

	subs, err := loadSubscribers(ctx, tx)
	if err != nil {
		return err
	}
	if err := putJSON(ctx, tx, keySubscribers, subs); err != nil {
		return err
	}

	if len(raws) > 0 {
		log.Printf("INFO: migrated %d stored events to schema v%d", len(events), migrate.SchemaVersion)
	}
	return putJSON(ctx, tx, keySchema, strconv.Itoa(migrate.SchemaVersion))
}

// ---------- Events ----------

func loadEvents(ctx context.Context, q DBorTx) ([]models.Event, error) {
	var events []models.Event
	if _, err := getJSON(ctx, q, keyEvents, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) ListEvents(ctx context.Context) ([]models.Event, error) {
	return loadEvents(ctx, s.db)
}

func (s *Store) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	events, err := loadEvents(ctx, s.db)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if ev.ID == id {
			e := ev
			return &e, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (s *Store) SaveEvent(ctx context.Context, ev models.Event) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		events, err := loadEvents(ctx, tx)
		if err != nil {
			return err
		}
		replaced := false
		for i := range events {
			if events[i].ID == ev.ID {
				events[i] = ev
				replaced = true
				break
			}
		}
		if !replaced {
			events = append(events, ev)
		}
		return putJSON(ctx, tx, keyEvents, events)
	})
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		events, err := loadEvents(ctx, tx)
		if err != nil {
			return err
		}
		kept := events[:0]
		for _, ev := range events {
			if ev.ID != id {
				kept = append(kept, ev)
			}
		}
		if len(kept) == len(events) {
			return apperr.ErrNotFound
		}
		if err := putJSON(ctx, tx, keyEvents, kept); err != nil {
			return err
		}
		return del(ctx, tx, regsKey(id))
	})
}

// ---------- Registrations ----------

func loadRegistrations(ctx context.Context, q DBorTx, eventID string) ([]models.Registration, error) {
	var regs []models.Registration
	if _, err := getJSON(ctx, q, regsKey(eventID), &regs); err != nil {
		return nil, err
	}
	return regs, nil
}

func (s *Store) ListRegistrations(ctx context.Context, eventID string) ([]models.Registration, error) {
	return loadRegistrations(ctx, s.db, eventID)
}

func (s *Store) CountRegistrations(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE key LIKE ?;`, keyRegsPrefix+"%")
	if err != nil {
		return nil, &apperr.TransportError{Op: "count registrations", Err: err}
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, &apperr.TransportError{Op: "count registrations", Err: err}
		}
		var regs []models.Registration
		if err := json.Unmarshal([]byte(raw), &regs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		counts[key[len(keyRegsPrefix):]] = len(regs)
	}
	return counts, rows.Err()
}

func (s *Store) Register(ctx context.Context, eventID string, reg models.Registration) (models.Registration, error) {
	var admitted models.Registration
	err := s.write(ctx, func(tx *sql.Tx) error {
		events, err := loadEvents(ctx, tx)
		if err != nil {
			return err
		}
		ev, ok := find(events, eventID)
		if !ok {
			return apperr.ErrNotFound
		}
		regs, err := loadRegistrations(ctx, tx, eventID)
		if err != nil {
			return err
		}
		admitted, err = ledger.Admit(ev, regs, reg)
		if err != nil {
			return err
		}
		return putJSON(ctx, tx, regsKey(eventID), append(regs, admitted))
	})
	if err != nil {
		return models.Registration{}, err
	}
	return admitted, nil
}

func (s *Store) Unregister(ctx context.Context, eventID, neuronID string) (bool, error) {
	removed := false
	err := s.write(ctx, func(tx *sql.Tx) error {
		regs, err := loadRegistrations(ctx, tx, eventID)
		if err != nil {
			return err
		}
		kept, err := ledger.Remove(regs, neuronID)
		if errors.Is(err, apperr.ErrNotRegistered) {
			return nil
		}
		if err != nil {
			return err
		}
		removed = true
		return putJSON(ctx, tx, regsKey(eventID), kept)
	})
	return removed, err
}

func find(events []models.Event, id string) (models.Event, bool) {
	for _, ev := range events {
		if ev.ID == id {
			return ev, true
		}
	}
	return models.Event{}, false
}

// ---------- Subscribers ----------

// loadSubscribers also reads the older plain list-of-emails form.
func loadSubscribers(ctx context.Context, q DBorTx) ([]models.Subscriber, error) {
	var raw json.RawMessage
	found, err := getJSON(ctx, q, keySubscribers, &raw)
	if err != nil || !found {
		return nil, err
	}
	var current []models.Subscriber
	if err := json.Unmarshal(raw, &current); err == nil {
		return current, nil
	}
	var emails []string
	if err := json.Unmarshal(raw, &emails); err != nil {
		return nil, fmt.Errorf("decode %s: %w", keySubscribers, err)
	}
	var subs []models.Subscriber
	seen := map[string]bool{}
	for _, e := range emails {
		e = normalize.Email(e)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		subs = append(subs, models.Subscriber{Email: e})
	}
	return subs, nil
}

func (s *Store) Subscribe(ctx context.Context, sub models.Subscriber) (bool, error) {
	created := false
	err := s.write(ctx, func(tx *sql.Tx) error {
		subs, err := loadSubscribers(ctx, tx)
		if err != nil {
			return err
		}
		for _, existing := range subs {
			if existing.Email == sub.Email {
				return nil
			}
		}
		created = true
		return putJSON(ctx, tx, keySubscribers, append(subs, sub))
	})
	return created, err
}

func (s *Store) ListSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	return loadSubscribers(ctx, s.db)
}

func (s *Store) CountSubscribers(ctx context.Context) (int, error) {
	subs, err := loadSubscribers(ctx, s.db)
	return len(subs), err
}
