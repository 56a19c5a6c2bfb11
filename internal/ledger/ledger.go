// Package ledger decides whether a registration may be added to or removed
// from an event. It is pure: storage backends call it inside their own
// serialized write so the check and the write cannot interleave.
package ledger

import (
	"tournament-desk/internal/apperr"
	"tournament-desk/internal/models"
	"tournament-desk/internal/normalize"
)

type State int

const (
	Open State = iota
	Full
)

func (s State) String() string {
	if s == Full {
		return "full"
	}
	return "open"
}

// StateOf derives admission state from the current registration count.
func StateOf(ev models.Event, count int) State {
	if ev.CapacityReached(count) {
		return Full
	}
	return Open
}

// Admit checks candidate against the event and its current registrations
// and returns the record to append. The stored NeuronID is normalized.
func Admit(ev models.Event, regs []models.Registration, candidate models.Registration) (models.Registration, error) {
	if StateOf(ev, len(regs)) == Full {
		return models.Registration{}, apperr.ErrCapacityReached
	}

	candidate.FirstName = normalize.Text(candidate.FirstName)
	candidate.LastName = normalize.Text(candidate.LastName)
	candidate.NeuronID = normalize.Identifier(candidate.NeuronID)
	switch {
	case candidate.FirstName == "":
		return models.Registration{}, apperr.Invalid("firstName", "first name is required")
	case candidate.LastName == "":
		return models.Registration{}, apperr.Invalid("lastName", "last name is required")
	case candidate.NeuronID == "":
		return models.Registration{}, apperr.Invalid("neuronId", "Neuron ID is required")
	}

	if IndexOf(regs, candidate.NeuronID) >= 0 {
		return models.Registration{}, apperr.ErrDuplicateRegistrant
	}
	candidate.EventID = ev.ID
	return candidate, nil
}

// Remove drops every registration matching neuronID.
func Remove(regs []models.Registration, neuronID string) ([]models.Registration, error) {
	key := normalize.Identifier(neuronID)
	if key == "" {
		return regs, apperr.Invalid("neuronId", "Neuron ID is required")
	}
	out := make([]models.Registration, 0, len(regs))
	for _, r := range regs {
		if normalize.Identifier(r.NeuronID) != key {
			out = append(out, r)
		}
	}
	if len(out) == len(regs) {
		return regs, apperr.ErrNotRegistered
	}
	return out, nil
}

// IndexOf finds the registration holding the normalized identifier, or -1.
func IndexOf(regs []models.Registration, neuronID string) int {
	key := normalize.Identifier(neuronID)
	for i, r := range regs {
		if normalize.Identifier(r.NeuronID) == key {
			return i
		}
	}
	return -1
}
