package models

import (
	"fmt"
	"time"
)

// Event is a validated, normalized tournament listing. Only values that
// passed validate.Event are ever stored in one.
type Event struct {
	ID                  string    `json:"id"`
	Title               string    `json:"title"`
	Location            string    `json:"location"`
	Description         string    `json:"description"`
	Notes               string    `json:"notes"`
	Date                string    `json:"date"`            // DD/MM/YY
	PreregStartDate     string    `json:"preregStartDate"` // DD/MM/YY
	PreregEndDate       string    `json:"preregEndDate"`   // DD/MM/YY
	RegStartTime        string    `json:"regStartTime"`    // HH:MM
	TournamentStartTime string    `json:"tournamentStartTime"`
	PreregFee           float64   `json:"preregFee"`
	NonRegFee           float64   `json:"nonRegFee"`
	PlayerCap           int       `json:"playerCap"`
	SwissRounds         int       `json:"swissRounds"`
	TopCut              string    `json:"topCut"`
	ImageDataURL        string    `json:"imageDataUrl"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Unlimited reports whether the cap does not restrict admission. Validated
// events always have a cap >= 1; legacy records may not.
func (e Event) Unlimited() bool {
	return e.PlayerCap <= 0
}

// CapacityReached reports whether count registrations fill the event.
func (e Event) CapacityReached(count int) bool {
	return !e.Unlimited() && count >= e.PlayerCap
}

func (e Event) CapacityText(count int) string {
	if e.Unlimited() {
		return fmt.Sprintf("%d / ∞", count)
	}
	return fmt.Sprintf("%d / %d", count, e.PlayerCap)
}

// EventDraft carries raw form values as submitted by the admin.
type EventDraft struct {
	Title               string `json:"title"`
	Location            string `json:"location"`
	Description         string `json:"description"`
	Notes               string `json:"notes"`
	Date                string `json:"date"`
	PreregStartDate     string `json:"preregStartDate"`
	PreregEndDate       string `json:"preregEndDate"`
	RegStartTime        string `json:"regStartTime"`
	TournamentStartTime string `json:"tournamentStartTime"`
	PreregFee           string `json:"preregFee"`
	NonRegFee           string `json:"nonRegFee"`
	PlayerCap           string `json:"playerCap"`
	SwissRounds         string `json:"swissRounds"`
	TopCut              string `json:"topCut"`
	ImageDataURL        string `json:"imageDataUrl"`
}

// EventPatch is a partial update; nil fields are left untouched.
type EventPatch struct {
	Title               *string `json:"title,omitempty"`
	Location            *string `json:"location,omitempty"`
	Description         *string `json:"description,omitempty"`
	Notes               *string `json:"notes,omitempty"`
	Date                *string `json:"date,omitempty"`
	PreregStartDate     *string `json:"preregStartDate,omitempty"`
	PreregEndDate       *string `json:"preregEndDate,omitempty"`
	RegStartTime        *string `json:"regStartTime,omitempty"`
	TournamentStartTime *string `json:"tournamentStartTime,omitempty"`
	PreregFee           *string `json:"preregFee,omitempty"`
	NonRegFee           *string `json:"nonRegFee,omitempty"`
	PlayerCap           *string `json:"playerCap,omitempty"`
	SwissRounds         *string `json:"swissRounds,omitempty"`
	TopCut              *string `json:"topCut,omitempty"`
	ImageDataURL        *string `json:"imageDataUrl,omitempty"`
}

type Registration struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	NeuronID  string    `json:"neuronId"` // normalized
	CreatedAt time.Time `json:"createdAt"`
}

// RegistrationInput is what a visitor submits through the signup form.
type RegistrationInput struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	NeuronID  string `json:"neuronId"`
}

type Subscriber struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventView is an event plus the fields derived from its ledger.
type EventView struct {
	Event
	RegisteredCount int    `json:"registeredCount"`
	CapacityLabel   string `json:"capacityText"`
	Full            bool   `json:"full"`
	PreregFeeText   string `json:"preregFeeText"`
	NonRegFeeText   string `json:"nonRegFeeText"`
}
