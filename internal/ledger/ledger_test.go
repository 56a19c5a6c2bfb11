package ledger

import (
	"errors"
	"testing"

	"tournament-desk/internal/apperr"
	"tournament-desk/internal/models"
)

func reg(first, last, id string) models.Registration {
	return models.Registration{FirstName: first, LastName: last, NeuronID: id}
}

func TestAdmitUpToCap(t *testing.T) {
	ev := models.Event{ID: "ev1", PlayerCap: 2}
	var regs []models.Registration

	for _, c := range []models.Registration{reg("Ana", "Babić", "n1"), reg("Ivo", "Horvat", "n2")} {
		r, err := Admit(ev, regs, c)
		if err != nil {
			t.Fatalf("Admit(%s) error = %v", c.NeuronID, err)
		}
		regs = append(regs, r)
	}
	if StateOf(ev, len(regs)) != Full {
		t.Errorf("state = %v, expected full", StateOf(ev, len(regs)))
	}

	_, err := Admit(ev, regs, reg("Mia", "Kovač", "n3"))
	if !errors.Is(err, apperr.ErrCapacityReached) {
		t.Errorf("third Admit error = %v, expected ErrCapacityReached", err)
	}
}

func TestAdmitNormalizesAndStampsEvent(t *testing.T) {
	ev := models.Event{ID: "ev1", PlayerCap: 4}
	r, err := Admit(ev, nil, reg(" Ana ", "Babić\n", " ab c1 "))
	if err != nil {
		t.Fatal(err)
	}
	if r.NeuronID != "ABC1" || r.FirstName != "Ana" || r.LastName != "Babić" || r.EventID != "ev1" {
		t.Errorf("Admit() = %+v", r)
	}
}

func TestAdmitRejections(t *testing.T) {
	ev := models.Event{ID: "ev1", PlayerCap: 4}
	existing := []models.Registration{reg("Ana", "Babić", "ABC123")}

	tests := []struct {
		candidate models.Registration
		expected  error
		desc      string
	}{
		{reg("", "Horvat", "X1"), apperr.ErrValidation, "missing first name"},
		{reg("Ivo", " ", "X1"), apperr.ErrValidation, "missing last name"},
		{reg("Ivo", "Horvat", " \t "), apperr.ErrValidation, "blank identifier"},
		{reg("Ivo", "Horvat", "abc 123"), apperr.ErrDuplicateRegistrant, "duplicate after normalization"},
	}

	for _, test := range tests {
		if _, err := Admit(ev, existing, test.candidate); !errors.Is(err, test.expected) {
			t.Errorf("%s: error = %v, expected %v", test.desc, err, test.expected)
		}
	}
}

func TestFullCheckedBeforeValidation(t *testing.T) {
	ev := models.Event{PlayerCap: 1}
	_, err := Admit(ev, []models.Registration{reg("A", "B", "C")}, reg("", "", ""))
	if !errors.Is(err, apperr.ErrCapacityReached) {
		t.Errorf("error = %v, expected ErrCapacityReached", err)
	}
}

func TestUnlimitedCap(t *testing.T) {
	for _, c := range []int{0, -5} {
		ev := models.Event{PlayerCap: c}
		regs := make([]models.Registration, 100)
		if StateOf(ev, len(regs)) != Open {
			t.Errorf("cap %d should be unlimited", c)
		}
	}
}

func TestRemove(t *testing.T) {
	regs := []models.Registration{reg("Ana", "Babić", "ABC123"), reg("Ivo", "Horvat", "XYZ")}

	out, err := Remove(regs, "abc 123")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if len(out) != 1 || out[0].NeuronID != "XYZ" {
		t.Errorf("Remove() = %+v", out)
	}

	if _, err := Remove(out, "abc123"); !errors.Is(err, apperr.ErrNotRegistered) {
		t.Errorf("second Remove error = %v, expected ErrNotRegistered", err)
	}
	if _, err := Remove(out, "  "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank Remove error = %v, expected ErrValidation", err)
	}
}
