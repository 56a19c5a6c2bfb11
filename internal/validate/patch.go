package validate

import (
	"strconv"

	"tournament-desk/internal/models"
)

// DraftOf renders a stored event back into form values.
func DraftOf(ev models.Event) models.EventDraft {
	return models.EventDraft{
		Title:               ev.Title,
		Location:            ev.Location,
		Description:         ev.Description,
		Notes:               ev.Notes,
		Date:                ev.Date,
		PreregStartDate:     ev.PreregStartDate,
		PreregEndDate:       ev.PreregEndDate,
		RegStartTime:        ev.RegStartTime,
		TournamentStartTime: ev.TournamentStartTime,
		PreregFee:           strconv.FormatFloat(ev.PreregFee, 'f', -1, 64),
		NonRegFee:           strconv.FormatFloat(ev.NonRegFee, 'f', -1, 64),
		PlayerCap:           strconv.Itoa(ev.PlayerCap),
		SwissRounds:         strconv.Itoa(ev.SwissRounds),
		TopCut:              ev.TopCut,
		ImageDataURL:        ev.ImageDataURL,
	}
}

// ApplyPatch overlays the present patch fields on the existing event so the
// merged result can be validated as a whole.
func ApplyPatch(existing models.Event, p models.EventPatch) models.EventDraft {
	d := DraftOf(existing)
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&d.Title, p.Title)
	set(&d.Location, p.Location)
	set(&d.Description, p.Description)
	set(&d.Notes, p.Notes)
	set(&d.Date, p.Date)
	set(&d.PreregStartDate, p.PreregStartDate)
	set(&d.PreregEndDate, p.PreregEndDate)
	set(&d.RegStartTime, p.RegStartTime)
	set(&d.TournamentStartTime, p.TournamentStartTime)
	set(&d.PreregFee, p.PreregFee)
	set(&d.NonRegFee, p.NonRegFee)
	set(&d.PlayerCap, p.PlayerCap)
	set(&d.SwissRounds, p.SwissRounds)
	set(&d.TopCut, p.TopCut)
	set(&d.ImageDataURL, p.ImageDataURL)
	return d
}
