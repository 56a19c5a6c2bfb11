package sheets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	sheetsv4 "google.golang.org/api/sheets/v4"

	"tournament-desk/internal/apperr"
	"tournament-desk/internal/ledger"
	"tournament-desk/internal/models"
	"tournament-desk/internal/normalize"
	"tournament-desk/internal/store"
)

const (
	SheetEvents        = "Events"
	SheetImages        = "Event_Images"
	SheetRegistrations = "Registrations"
	SheetSubscribers   = "Subscribers"
)

var _ store.Store = (*Client)(nil)

// A cell holds at most 50k characters; images are split across rows.
const imageChunk = 45000

func (c *Client) readAll(ctx context.Context, sheet string) ([][]interface{}, error) {
	resp, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, sheet+"!A:Z").Context(ctx).Do()
	if err != nil {
		return nil, &apperr.TransportError{Op: "read " + sheet, Err: err}
	}
	return resp.Values, nil
}

func (c *Client) appendRows(ctx context.Context, sheet string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	vr := &sheetsv4.ValueRange{Values: rows}
	_, err := c.srv.Spreadsheets.Values.Append(c.spreadsheetID, sheet+"!A:Z", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return &apperr.TransportError{Op: "append " + sheet, Err: err}
	}
	return nil
}

func (c *Client) updateRow(ctx context.Context, sheet string, rowNum int, row []interface{}) error {
	a1 := fmt.Sprintf("%s!A%d", sheet, rowNum)
	vr := &sheetsv4.ValueRange{Values: [][]interface{}{row}}
	_, err := c.srv.Spreadsheets.Values.Update(c.spreadsheetID, a1, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return &apperr.TransportError{Op: "update " + sheet, Err: err}
	}
	return nil
}

// deleteRows removes 1-indexed sheet rows, bottom-up so indexes stay valid.
func (c *Client) deleteRows(ctx context.Context, sheet string, rowNums []int) error {
	if len(rowNums) == 0 {
		return nil
	}
	sid, err := c.sheetID(ctx, sheet)
	if err != nil {
		return &apperr.TransportError{Op: "delete " + sheet, Err: err}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(rowNums)))
	reqs := make([]*sheetsv4.Request, 0, len(rowNums))
	for _, n := range rowNums {
		reqs = append(reqs, &sheetsv4.Request{
			DeleteDimension: &sheetsv4.DeleteDimensionRequest{
				Range: &sheetsv4.DimensionRange{
					SheetId:    sid,
					Dimension:  "ROWS",
					StartIndex: int64(n - 1),
					EndIndex:   int64(n),
				},
			},
		})
	}
	_, err = c.srv.Spreadsheets.BatchUpdate(c.spreadsheetID, &sheetsv4.BatchUpdateSpreadsheetRequest{Requests: reqs}).
		Context(ctx).
		Do()
	if err != nil {
		return &apperr.TransportError{Op: "delete " + sheet, Err: err}
	}
	return nil
}

// ---------- Events ----------

// columns: id, title, location, description, notes, date, prereg_start,
// prereg_end, reg_start_time, tournament_start_time, prereg_fee,
// non_reg_fee, player_cap, swiss_rounds, top_cut, created_at, updated_at
func eventToRow(ev models.Event) []interface{} {
	return []interface{}{
		ev.ID, ev.Title, ev.Location, ev.Description, ev.Notes,
		ev.Date, ev.PreregStartDate, ev.PreregEndDate,
		ev.RegStartTime, ev.TournamentStartTime,
		ev.PreregFee, ev.NonRegFee, ev.PlayerCap, ev.SwissRounds, ev.TopCut,
		ev.CreatedAt.UTC().Format(time.RFC3339), ev.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func rowToEvent(row []interface{}) models.Event {
	fee, _ := normalize.AsAmount(get(row, 10))
	nonReg, _ := normalize.AsAmount(get(row, 11))
	playerCap, _ := normalize.AsInteger(get(row, 12))
	rounds, _ := normalize.AsInteger(get(row, 13))
	return models.Event{
		ID:                  get(row, 0),
		Title:               get(row, 1),
		Location:            get(row, 2),
		Description:         get(row, 3),
		Notes:               get(row, 4),
		Date:                get(row, 5),
		PreregStartDate:     get(row, 6),
		PreregEndDate:       get(row, 7),
		RegStartTime:        get(row, 8),
		TournamentStartTime: get(row, 9),
		PreregFee:           fee,
		NonRegFee:           nonReg,
		PlayerCap:           playerCap,
		SwissRounds:         rounds,
		TopCut:              get(row, 14),
		CreatedAt:           parseTime(get(row, 15)),
		UpdatedAt:           parseTime(get(row, 16)),
	}
}

// eventRows returns events with their 1-indexed sheet row numbers.
func (c *Client) eventRows(ctx context.Context) ([]models.Event, []int, error) {
	values, err := c.readAll(ctx, SheetEvents)
	if err != nil {
		return nil, nil, err
	}
	events := []models.Event{}
	rows := []int{}
	// header row at index 0
	for i := 1; i < len(values); i++ {
		ev := rowToEvent(values[i])
		if strings.TrimSpace(ev.ID) == "" {
			continue
		}
		events = append(events, ev)
		rows = append(rows, i+1)
	}
	return events, rows, nil
}

func (c *Client) ListEvents(ctx context.Context) ([]models.Event, error) {
	events, _, err := c.eventRows(ctx)
	if err != nil {
		return nil, err
	}
	images, err := c.images(ctx)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].ImageDataURL = images[events[i].ID]
	}
	return events, nil
}

func (c *Client) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	events, err := c.ListEvents(ctx)
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

func (c *Client) SaveEvent(ctx context.Context, ev models.Event) error {
	m := c.lock("event:" + ev.ID)
	m.Lock()
	defer m.Unlock()

	if err := c.upsertEventRow(ctx, ev); err != nil {
		return err
	}
	return c.replaceImage(ctx, ev.ID, ev.ImageDataURL)
}

func (c *Client) upsertEventRow(ctx context.Context, ev models.Event) error {
	t := c.tab(SheetEvents)
	t.Lock()
	defer t.Unlock()

	events, rows, err := c.eventRows(ctx)
	if err != nil {
		return err
	}
	for i, existing := range events {
		if existing.ID == ev.ID {
			return c.updateRow(ctx, SheetEvents, rows[i], eventToRow(ev))
		}
	}
	return c.appendRows(ctx, SheetEvents, [][]interface{}{eventToRow(ev)})
}

func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	m := c.lock("event:" + id)
	m.Lock()
	defer m.Unlock()

	if err := c.deleteEventRows(ctx, id); err != nil {
		return err
	}
	if err := c.replaceImage(ctx, id, ""); err != nil {
		return err
	}

	t := c.tab(SheetRegistrations)
	t.Lock()
	defer t.Unlock()
	_, regRows, err := c.registrationRows(ctx, id)
	if err != nil {
		return err
	}
	return c.deleteRows(ctx, SheetRegistrations, regRows)
}

func (c *Client) deleteEventRows(ctx context.Context, id string) error {
	t := c.tab(SheetEvents)
	t.Lock()
	defer t.Unlock()

	events, rows, err := c.eventRows(ctx)
	if err != nil {
		return err
	}
	var doomed []int
	for i, ev := range events {
		if ev.ID == id {
			doomed = append(doomed, rows[i])
		}
	}
	if len(doomed) == 0 {
		return apperr.ErrNotFound
	}
	return c.deleteRows(ctx, SheetEvents, doomed)
}

// ---------- Images ----------

// chunk splits s into pieces that fit in one cell.
func chunk(s string, size int) []string {
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}

// images reassembles every event image: columns event_id, seq, data.
func (c *Client) images(ctx context.Context) (map[string]string, error) {
	values, err := c.readAll(ctx, SheetImages)
	if err != nil {
		return nil, err
	}
	type part struct {
		seq  int
		data string
	}
	parts := map[string][]part{}
	for i := 1; i < len(values); i++ {
		row := values[i]
		id := get(row, 0)
		if id == "" {
			continue
		}
		seq, _ := strconv.Atoi(get(row, 1))
		parts[id] = append(parts[id], part{seq: seq, data: get(row, 2)})
	}
	out := make(map[string]string, len(parts))
	for id, ps := range parts {
		sort.Slice(ps, func(i, j int) bool { return ps[i].seq < ps[j].seq })
		var b strings.Builder
		for _, p := range ps {
			b.WriteString(p.data)
		}
		out[id] = b.String()
	}
	return out, nil
}

func (c *Client) replaceImage(ctx context.Context, eventID, dataURL string) error {
	t := c.tab(SheetImages)
	t.Lock()
	defer t.Unlock()

	values, err := c.readAll(ctx, SheetImages)
	if err != nil {
		return err
	}
	var old []int
	for i := 1; i < len(values); i++ {
		if get(values[i], 0) == eventID {
			old = append(old, i+1)
		}
	}
	if err := c.deleteRows(ctx, SheetImages, old); err != nil {
		return err
	}
	var rows [][]interface{}
	for i, piece := range chunk(dataURL, imageChunk) {
		rows = append(rows, []interface{}{eventID, i, piece})
	}
	return c.appendRows(ctx, SheetImages, rows)
}

// ---------- Registrations ----------

// columns: event_id, id, first_name, last_name, neuron_id, created_at
func registrationToRow(r models.Registration) []interface{} {
	return []interface{}{r.EventID, r.ID, r.FirstName, r.LastName, r.NeuronID, r.CreatedAt.UTC().Format(time.RFC3339)}
}

func rowToRegistration(row []interface{}) models.Registration {
	return models.Registration{
		EventID:   get(row, 0),
		ID:        get(row, 1),
		FirstName: get(row, 2),
		LastName:  get(row, 3),
		NeuronID:  normalize.Identifier(get(row, 4)),
		CreatedAt: parseTime(get(row, 5)),
	}
}

func (c *Client) registrationRows(ctx context.Context, eventID string) ([]models.Registration, []int, error) {
	values, err := c.readAll(ctx, SheetRegistrations)
	if err != nil {
		return nil, nil, err
	}
	regs := []models.Registration{}
	rows := []int{}
	for i := 1; i < len(values); i++ {
		row := values[i]
		if len(row) == 0 || get(row, 0) != eventID {
			continue
		}
		regs = append(regs, rowToRegistration(row))
		rows = append(rows, i+1)
	}
	return regs, rows, nil
}

func (c *Client) ListRegistrations(ctx context.Context, eventID string) ([]models.Registration, error) {
	regs, _, err := c.registrationRows(ctx, eventID)
	return regs, err
}

func (c *Client) CountRegistrations(ctx context.Context) (map[string]int, error) {
	values, err := c.readAll(ctx, SheetRegistrations)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for i := 1; i < len(values); i++ {
		if id := get(values[i], 0); id != "" {
			counts[id]++
		}
	}
	return counts, nil
}

func (c *Client) Register(ctx context.Context, eventID string, reg models.Registration) (models.Registration, error) {
	m := c.lock("event:" + eventID)
	m.Lock()
	defer m.Unlock()

	ev, err := c.GetEvent(ctx, eventID)
	if err != nil {
		return models.Registration{}, err
	}
	regs, err := c.ListRegistrations(ctx, eventID)
	if err != nil {
		return models.Registration{}, err
	}
	admitted, err := ledger.Admit(*ev, regs, reg)
	if err != nil {
		return models.Registration{}, err
	}
	if err := c.appendRows(ctx, SheetRegistrations, [][]interface{}{registrationToRow(admitted)}); err != nil {
		return models.Registration{}, err
	}
	return admitted, nil
}

func (c *Client) Unregister(ctx context.Context, eventID, neuronID string) (bool, error) {
	m := c.lock("event:" + eventID)
	m.Lock()
	defer m.Unlock()
	t := c.tab(SheetRegistrations)
	t.Lock()
	defer t.Unlock()

	regs, rows, err := c.registrationRows(ctx, eventID)
	if err != nil {
		return false, err
	}
	if _, err := ledger.Remove(regs, neuronID); err != nil {
		if errors.Is(err, apperr.ErrNotRegistered) {
			return false, nil
		}
		return false, err
	}
	key := normalize.Identifier(neuronID)
	var doomed []int
	for i, r := range regs {
		if r.NeuronID == key {
			doomed = append(doomed, rows[i])
		}
	}
	if err := c.deleteRows(ctx, SheetRegistrations, doomed); err != nil {
		return false, err
	}
	return true, nil
}

// ---------- Subscribers ----------

// columns: email, created_at
func (c *Client) ListSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	values, err := c.readAll(ctx, SheetSubscribers)
	if err != nil {
		return nil, err
	}
	subs := []models.Subscriber{}
	seen := map[string]bool{}
	for i := 1; i < len(values); i++ {
		email := normalize.Email(get(values[i], 0))
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true
		subs = append(subs, models.Subscriber{Email: email, CreatedAt: parseTime(get(values[i], 1))})
	}
	return subs, nil
}

func (c *Client) CountSubscribers(ctx context.Context) (int, error) {
	subs, err := c.ListSubscribers(ctx)
	return len(subs), err
}

func (c *Client) Subscribe(ctx context.Context, sub models.Subscriber) (bool, error) {
	m := c.lock("subscribers")
	m.Lock()
	defer m.Unlock()

	subs, err := c.ListSubscribers(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range subs {
		if s.Email == sub.Email {
			return false, nil
		}
	}
	row := []interface{}{sub.Email, sub.CreatedAt.UTC().Format(time.RFC3339)}
	if err := c.appendRows(ctx, SheetSubscribers, [][]interface{}{row}); err != nil {
		return false, err
	}
	return true, nil
}

// ---------- helpers ----------

func get(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return ""
	}
	return fmt.Sprint(row[idx])
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}
