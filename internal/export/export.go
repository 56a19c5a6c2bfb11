package export

import (
	"bytes"
	"encoding/csv"
	"net/url"
	"strings"
	"time"

	"tournament-desk/internal/models"
	"tournament-desk/internal/normalize"
)

// Registrants renders the participant list handed to organizers:
// a "title | date | location" header, then first-last-NEURONID per line.
func Registrants(ev models.Event, regs []models.Registration) string {
	var b strings.Builder
	b.WriteString(normalize.Text(ev.Title) + " | " + normalize.Text(ev.Date) + " | " + normalize.Text(ev.Location) + "\n")
	for _, r := range regs {
		b.WriteString(normalize.Text(r.FirstName))
		b.WriteByte('-')
		b.WriteString(normalize.Text(r.LastName))
		b.WriteByte('-')
		b.WriteString(normalize.Identifier(r.NeuronID))
		b.WriteByte('\n')
	}
	return b.String()
}

func Subscribers(subs []models.Subscriber) string {
	var b strings.Builder
	for _, s := range subs {
		b.WriteString(normalize.Email(s.Email))
		b.WriteByte('\n')
	}
	return b.String()
}

// RegistrantsCSV is the spreadsheet-friendly variant of Registrants.
func RegistrantsCSV(regs []models.Registration) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"first_name", "last_name", "neuron_id", "registered_at"}); err != nil {
		return "", err
	}
	for _, r := range regs {
		row := []string{
			normalize.Text(r.FirstName),
			normalize.Text(r.LastName),
			normalize.Identifier(r.NeuronID),
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	return buf.String(), w.Error()
}

// MailtoDraft builds a mailto: link that opens an email draft with the
// export as its body.
func MailtoDraft(to, subject, body string) string {
	q := url.Values{}
	q.Set("subject", subject)
	q.Set("body", body)
	// mail clients expect %20, not +
	return "mailto:" + url.PathEscape(to) + "?" + strings.ReplaceAll(q.Encode(), "+", "%20")
}

// FileName builds a download name like "spring-cup_15-04-26.txt".
func FileName(ev models.Event, ext string) string {
	slug := strings.Builder{}
	for _, r := range strings.ToLower(normalize.Text(ev.Title)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			slug.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			slug.WriteRune('-')
		}
	}
	name := strings.Trim(slug.String(), "-")
	if name == "" {
		name = "event"
	}
	return name + "_" + strings.ReplaceAll(ev.Date, "/", "-") + "." + ext
}
