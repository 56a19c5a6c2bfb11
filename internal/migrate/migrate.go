// Package migrate upgrades stored event records written by older schema
// versions. It runs once at load time; business code only ever sees the
// typed models.Event it produces.
package migrate

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"tournament-desk/internal/models"
	"tournament-desk/internal/normalize"
)

// SchemaVersion is the version written alongside migrated collections.
const SchemaVersion = 2

// renamed maps historical keys onto canonical ones. Order matters when
// several legacy keys exist for one field: the first present wins.
var renamed = []struct {
	old, canonical string
}{
	{"preRegistrationFee", "preregFee"},
	{"fee", "preregFee"},
	{"price", "preregFee"},
	{"cap", "playerCap"},
	{"swiss", "swissRounds"},
	{"topcut", "topCut"},
	{"otherNotes", "notes"},
	{"registrationStartTime", "regStartTime"},
	{"startTime", "tournamentStartTime"},
	{"preRegStartDate", "preregStartDate"},
	{"preRegEndDate", "preregEndDate"},
	{"preregCancelEndDate", "preregEndDate"},
}

// Needed reports whether a collection stored at version must be migrated.
func Needed(version int) bool {
	return version < SchemaVersion
}

// Canonicalize rewrites legacy keys in place. A canonical key already
// present is never overwritten.
func Canonicalize(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	for _, r := range renamed {
		v, ok := out[r.old]
		if !ok {
			continue
		}
		delete(out, r.old)
		if _, exists := out[r.canonical]; !exists && v != nil {
			out[r.canonical] = v
		}
	}
	return out
}

// Event converts one raw stored record into a typed event.
func Event(raw map[string]any) (models.Event, error) {
	m := Canonicalize(raw)

	ev := models.Event{
		ID:                  str(m["id"]),
		Title:               normalize.Text(str(m["title"])),
		Location:            normalize.Text(str(m["location"])),
		Description:         normalize.Text(str(m["description"])),
		Notes:               normalize.Text(str(m["notes"])),
		Date:                date(str(m["date"])),
		PreregStartDate:     date(str(m["preregStartDate"])),
		PreregEndDate:       date(str(m["preregEndDate"])),
		RegStartTime:        strings.TrimSpace(str(m["regStartTime"])),
		TournamentStartTime: strings.TrimSpace(str(m["tournamentStartTime"])),
		PreregFee:           amount(m["preregFee"]),
		NonRegFee:           amount(m["nonRegFee"]),
		PlayerCap:           integer(m["playerCap"]),
		SwissRounds:         integer(m["swissRounds"]),
		TopCut:              normalize.Text(str(m["topCut"])),
		ImageDataURL:        str(m["imageDataUrl"]),
		CreatedAt:           timestamp(m["createdAt"]),
		UpdatedAt:           timestamp(m["updatedAt"]),
	}
	if ev.ID == "" {
		return ev, fmt.Errorf("migrate: event record without id")
	}
	if ev.UpdatedAt.IsZero() {
		ev.UpdatedAt = ev.CreatedAt
	}
	return ev, nil
}

// Events migrates a whole stored collection, skipping records that cannot
// be identified.
func Events(raws []map[string]any) ([]models.Event, []error) {
	out := make([]models.Event, 0, len(raws))
	var errs []error
	for _, r := range raws {
		ev, err := Event(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, ev)
	}
	return out, errs
}

// Registrations normalizes stored Neuron IDs and keeps only the first record
// for each normalized id, returning how many later duplicates were dropped.
func Registrations(eventID string, regs []models.Registration) ([]models.Registration, int) {
	out := make([]models.Registration, 0, len(regs))
	seen := make(map[string]bool, len(regs))
	for _, r := range regs {
		r.EventID = eventID
		r.NeuronID = normalize.Identifier(r.NeuronID)
		if seen[r.NeuronID] {
			continue
		}
		seen[r.NeuronID] = true
		out = append(out, r)
	}
	return out, len(regs) - len(out)
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// date canonicalizes what it can and keeps anything else verbatim so an
// admin can still see and fix it.
func date(s string) string {
	if d, ok := normalize.Date(s); ok {
		return d
	}
	return strings.TrimSpace(s)
}

func amount(v any) float64 {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return t
	case string:
		f, _ := normalize.AsAmount(t)
		return f
	default:
		return 0
	}
}

// integer yields 0 (unlimited for caps) when the stored value is unusable.
func integer(v any) int {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return int(math.Trunc(t))
	case string:
		n, _ := normalize.AsInteger(t)
		return n
	default:
		return 0
	}
}

// timestamp accepts RFC 3339 strings and epoch milliseconds.
func timestamp(v any) time.Time {
	switch t := v.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts.UTC()
		}
		if ms, err := strconv.ParseInt(t, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC()
		}
	case float64:
		return time.UnixMilli(int64(t)).UTC()
	}
	return time.Time{}
}
