// Package validate turns raw admin form input into normalized events.
package validate

import (
	"strings"

	"tournament-desk/internal/apperr"
	"tournament-desk/internal/models"
	"tournament-desk/internal/normalize"
)

// Event checks draft field by field and returns the first failure. On
// success the returned event carries only normalized values; ID and
// timestamps are left for the caller to assign.
func Event(d models.EventDraft) (models.Event, error) {
	var ev models.Event

	image := strings.TrimSpace(d.ImageDataURL)
	if image == "" {
		return ev, apperr.Invalid("imageDataUrl", "an event image is required")
	}
	if err := Image(image); err != nil {
		return ev, err
	}

	title := normalize.Text(d.Title)
	if title == "" {
		return ev, apperr.Invalid("title", "title is required")
	}
	date, ok := normalize.Date(d.Date)
	if !ok {
		return ev, apperr.Invalid("date", "date must be DD/MM/YY")
	}
	location := normalize.Text(d.Location)
	if location == "" {
		return ev, apperr.Invalid("location", "location is required")
	}

	if blank(d.PreregFee) {
		return ev, apperr.Invalid("preregFee", "pre-registration fee is required")
	}
	if blank(d.NonRegFee) {
		return ev, apperr.Invalid("nonRegFee", "fee without pre-registration is required")
	}
	if blank(d.PlayerCap) {
		return ev, apperr.Invalid("playerCap", "player cap is required")
	}
	if blank(d.SwissRounds) {
		return ev, apperr.Invalid("swissRounds", "number of swiss rounds is required")
	}
	if blank(d.TopCut) {
		return ev, apperr.Invalid("topCut", "top cut is required")
	}

	regStart := strings.TrimSpace(d.RegStartTime)
	if regStart == "" || !normalize.IsValidTime(regStart) {
		return ev, apperr.Invalid("regStartTime", "registration start must be HH:MM")
	}
	tourStart := strings.TrimSpace(d.TournamentStartTime)
	if tourStart == "" || !normalize.IsValidTime(tourStart) {
		return ev, apperr.Invalid("tournamentStartTime", "tournament start must be HH:MM")
	}

	preregStart, ok := normalize.Date(d.PreregStartDate)
	if !ok {
		return ev, apperr.Invalid("preregStartDate", "pre-registration start must be DD/MM/YY")
	}
	preregEnd, ok := normalize.Date(d.PreregEndDate)
	if !ok {
		return ev, apperr.Invalid("preregEndDate", "pre-registration end must be DD/MM/YY")
	}

	preregFee, ok := normalize.AsAmount(d.PreregFee)
	if !ok || preregFee < 0 {
		return ev, apperr.Invalid("preregFee", "pre-registration fee must be a non-negative number")
	}
	nonRegFee, ok := normalize.AsAmount(d.NonRegFee)
	if !ok || nonRegFee < 0 {
		return ev, apperr.Invalid("nonRegFee", "fee must be a non-negative number")
	}
	playerCap, ok := normalize.AsInteger(d.PlayerCap)
	if !ok || playerCap <= 0 {
		return ev, apperr.Invalid("playerCap", "player cap must be a positive integer")
	}
	swissRounds, ok := normalize.AsInteger(d.SwissRounds)
	if !ok || swissRounds <= 0 {
		return ev, apperr.Invalid("swissRounds", "swiss rounds must be a positive integer")
	}
	topCut := normalize.Text(d.TopCut)
	if topCut == "" {
		return ev, apperr.Invalid("topCut", "top cut is required")
	}

	if err := windowOrder(preregStart, preregEnd, date); err != nil {
		return ev, err
	}

	return models.Event{
		Title:               title,
		Location:            location,
		Description:         normalize.Text(d.Description),
		Notes:               normalize.Text(d.Notes),
		Date:                date,
		PreregStartDate:     preregStart,
		PreregEndDate:       preregEnd,
		RegStartTime:        regStart,
		TournamentStartTime: tourStart,
		PreregFee:           preregFee,
		NonRegFee:           nonRegFee,
		PlayerCap:           playerCap,
		SwissRounds:         swissRounds,
		TopCut:              topCut,
		ImageDataURL:        image,
	}, nil
}

// windowOrder requires preregStart <= preregEnd <= date.
func windowOrder(preregStart, preregEnd, date string) error {
	s, _ := normalize.CalendarDate(preregStart)
	e, _ := normalize.CalendarDate(preregEnd)
	d, _ := normalize.CalendarDate(date)
	if e.Before(s) {
		return apperr.Invalid("preregEndDate", "pre-registration cannot end before it starts")
	}
	if d.Before(e) {
		return apperr.Invalid("preregEndDate", "pre-registration must end on or before the event date")
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
