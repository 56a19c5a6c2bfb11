package tgbot

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tournament-desk/internal/apperr"
	"tournament-desk/internal/config"
	"tournament-desk/internal/models"
	"tournament-desk/internal/normalize"
	"tournament-desk/internal/session"
	"tournament-desk/internal/tourney"
	"tournament-desk/internal/util"
)

// sender is the part of *tgbotapi.BotAPI the app talks to.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type App struct {
	cfg config.Config
	bot sender
	api *tgbotapi.BotAPI
	svc *tourney.Service

	// very simple in-memory state machine for registration / admin flows
	state map[int64]userState
}

type userState struct {
	Flow string
	Step int
	Data map[string]string
}

const (
	flowRegister      = "reg"
	flowUnregister    = "unreg"
	flowSubscribe     = "sub"
	flowAdminDelete   = "admin_delete"
	adminSessionLabel = "telegram"
)

func New(cfg config.Config, svc *tourney.Service) (*App, error) {
	b, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, err
	}
	b.Debug = false
	a := newApp(cfg, svc, b)
	a.api = b
	return a, nil
}

func newApp(cfg config.Config, svc *tourney.Service, bot sender) *App {
	return &App{
		cfg:   cfg,
		bot:   bot,
		svc:   svc,
		state: map[int64]userState{},
	}
}

func (a *App) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := a.api.GetUpdatesChan(u)
	defer a.api.StopReceivingUpdates()

	return a.serve(ctx, updates)
}

// serve dispatches updates until ctx ends or the channel is closed.
func (a *App) serve(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			if upd.Message != nil {
				if err := a.handleMessage(ctx, upd.Message); err != nil {
					log.Printf("handle msg: %v", err)
				}
			} else if upd.CallbackQuery != nil {
				if err := a.handleCallback(ctx, upd.CallbackQuery); err != nil {
					log.Printf("handle cb: %v", err)
				}
			}
		}
	}
}

func (a *App) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := a.bot.Send(msg)
	return err
}

func (a *App) isAdmin(tgID int64) bool {
	return a.cfg.AdminTGIDs[tgID]
}

// sessionFor maps a configured Telegram admin onto an admin session.
func (a *App) sessionFor(tgID int64) *session.Session {
	if !a.isAdmin(tgID) {
		return nil
	}
	return &session.Session{ID: adminSessionLabel, Admin: true}
}

// report tells the user what went wrong. Storage failures are also
// returned so Run logs them.
func (a *App) report(tgID int64, err error) error {
	sendErr := a.SendText(tgID, "⚠️ "+apperr.UserMessage(err))
	if apperr.CodeOf(err) == apperr.CodeTransport {
		return err
	}
	return sendErr
}

// ---------- Message handling ----------

func (a *App) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	tgID := m.From.ID
	txt := strings.TrimSpace(m.Text)

	if strings.HasPrefix(txt, "/start") {
		a.state[tgID] = userState{}
		return a.showMainMenu(tgID)
	}
	if strings.HasPrefix(txt, "/admin") {
		if !a.isAdmin(tgID) {
			return a.SendText(tgID, "Pristup odbijen.")
		}
		a.state[tgID] = userState{}
		return a.showAdminMenu(tgID)
	}
	if strings.HasPrefix(txt, "/cancel") {
		a.state[tgID] = userState{}
		return a.SendText(tgID, "Prekinuto. /start")
	}

	// flow-based input
	st := a.state[tgID]
	if st.Flow != "" {
		return a.handleFlowInput(ctx, tgID, txt, st)
	}

	return a.showMainMenu(tgID)
}

func (a *App) handleFlowInput(ctx context.Context, tgID int64, txt string, st userState) error {
	switch st.Flow {
	case flowRegister:
		return a.handleRegistrationFlow(ctx, tgID, txt, st)
	case flowUnregister:
		return a.handleUnregisterFlow(ctx, tgID, txt, st)
	case flowSubscribe:
		return a.handleSubscribeFlow(ctx, tgID, txt)
	case flowAdminDelete:
		return a.handleAdminDeleteFlow(ctx, tgID, txt, st)
	default:
		a.state[tgID] = userState{}
		return a.SendText(tgID, "Stanje resetirano. Pritisni /start")
	}
}

// ---------- Callback handling ----------

func (a *App) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	tgID := q.From.ID
	data := q.Data

	// ack
	cb := tgbotapi.NewCallback(q.ID, "")
	_, _ = a.bot.Request(cb)

	if strings.HasPrefix(data, "u:") {
		return a.handleUserCallback(ctx, tgID, data)
	}
	if strings.HasPrefix(data, "a:") {
		if !a.isAdmin(tgID) {
			return a.SendText(tgID, "Pristup odbijen.")
		}
		return a.handleAdminCallback(ctx, tgID, data)
	}
	return nil
}

func (a *App) handleUserCallback(ctx context.Context, tgID int64, data string) error {
	switch data {
	case "u:menu":
		return a.showMainMenu(tgID)
	case "u:events":
		return a.showEvents(ctx, tgID)
	case "u:subscribe":
		a.state[tgID] = userState{Flow: flowSubscribe, Step: 1}
		return a.SendText(tgID, "Upiši email adresu za obavijesti o novim turnirima:")
	}

	if strings.HasPrefix(data, "u:reg:") {
		eventID := strings.TrimPrefix(data, "u:reg:")
		view, err := a.svc.GetEvent(ctx, eventID)
		if err != nil {
			return a.report(tgID, err)
		}
		if view.Full {
			return a.report(tgID, apperr.ErrCapacityReached)
		}
		a.state[tgID] = userState{Flow: flowRegister, Step: 1, Data: map[string]string{"event_id": eventID}}
		return a.SendText(tgID, "Prijava na "+view.Title+". Upiši ime:")
	}

	if strings.HasPrefix(data, "u:unreg:") {
		eventID := strings.TrimPrefix(data, "u:unreg:")
		a.state[tgID] = userState{Flow: flowUnregister, Step: 1, Data: map[string]string{"event_id": eventID}}
		return a.SendText(tgID, "Odjava. Upiši svoj Neuron ID:")
	}

	return nil
}

func (a *App) handleAdminCallback(ctx context.Context, tgID int64, data string) error {
	switch data {
	case "a:menu":
		return a.showAdminMenu(tgID)
	case "a:subscribers":
		return a.sendSubscribers(ctx, tgID)
	}

	if strings.HasPrefix(data, "a:export:") {
		eventID := strings.TrimPrefix(data, "a:export:")
		return a.sendRegistrants(ctx, tgID, eventID)
	}

	if strings.HasPrefix(data, "a:delete:") {
		eventID := strings.TrimPrefix(data, "a:delete:")
		view, err := a.svc.GetEvent(ctx, eventID)
		if err != nil {
			return a.report(tgID, err)
		}
		a.state[tgID] = userState{Flow: flowAdminDelete, Step: 1, Data: map[string]string{"event_id": eventID}}
		return a.SendText(tgID, fmt.Sprintf("Brisanje turnira %s (%s) zajedno s %d prijava. Upiši DA za potvrdu:",
			view.Title, view.Date, view.RegisteredCount))
	}

	return nil
}

// ---------- Screens / Menus ----------

func (a *App) showMainMenu(tgID int64) error {
	msg := tgbotapi.NewMessage(tgID, "🃏 Turniri\nOdaberi:")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📅 Turniri", "u:events"),
			tgbotapi.NewInlineKeyboardButtonData("📰 Obavijesti", "u:subscribe"),
		),
	)
	_, err := a.bot.Send(msg)
	return err
}

func (a *App) showAdminMenu(tgID int64) error {
	msg := tgbotapi.NewMessage(tgID, "🛠 *Admin*")
	msg.ParseMode = "Markdown"
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 Turniri", "u:events"),
			tgbotapi.NewInlineKeyboardButtonData("📬 Pretplatnici", "a:subscribers"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🏠 Izbornik", "u:menu"),
		),
	)
	_, err := a.bot.Send(msg)
	return err
}

func (a *App) showEvents(ctx context.Context, tgID int64) error {
	views, err := a.svc.ListEvents(ctx)
	if err != nil {
		return a.report(tgID, err)
	}
	if len(views) == 0 {
		return a.SendText(tgID, "Turnira još nema.")
	}

	var b strings.Builder
	b.WriteString("🃏 Turniri\n")
	for _, v := range views {
		b.WriteString(eventText(v))
	}

	rows := [][]tgbotapi.InlineKeyboardButton{}
	for _, v := range views {
		row := []tgbotapi.InlineKeyboardButton{}
		if !v.Full {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData("✍️ Prijava: "+v.Title, "u:reg:"+v.ID))
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("↩️ Odjava", "u:unreg:"+v.ID))
		rows = append(rows, row)
		if a.isAdmin(tgID) {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("📤 Popis", "a:export:"+v.ID),
				tgbotapi.NewInlineKeyboardButtonData("🗑 Obriši", "a:delete:"+v.ID),
			))
		}
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🏠 Izbornik", "u:menu"),
	))

	msg := tgbotapi.NewMessage(tgID, b.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err = a.bot.Send(msg)
	return err
}

func eventText(v models.EventView) string {
	text := fmt.Sprintf("\n%s\n 📅 %s, prijave od %s, početak %s\n 📍 %s\n 💶 predprijava %s, na dan %s\n 👥 %s",
		v.Title, v.Date, v.RegStartTime, v.TournamentStartTime, v.Location,
		v.PreregFeeText, v.NonRegFeeText, v.CapacityLabel,
	)
	text += fmt.Sprintf("\n 🔁 %d swiss rundi, %s", v.SwissRounds, v.TopCut)
	text += fmt.Sprintf("\n 🗓 predprijave %s do %s", v.PreregStartDate, v.PreregEndDate)
	if v.Full {
		text += "\n ⛔ popunjeno"
	}
	if v.Notes != "" {
		text += "\n ℹ️ " + v.Notes
	}
	return text + "\n"
}

// ---------- Exports ----------

func (a *App) sendRegistrants(ctx context.Context, tgID int64, eventID string) error {
	out, err := a.svc.ExportRegistrants(ctx, a.sessionFor(tgID), eventID)
	if err != nil {
		return a.report(tgID, err)
	}
	if err := a.sendDocument(tgID, out); err != nil {
		return err
	}
	q := url.Values{}
	q.Set("event_id", eventID)
	q.Set("token", util.ExportToken(a.cfg.ExportSecret, util.EventScope(eventID)))
	return a.SendText(tgID, "📤 CSV (link): "+a.publicURL()+"/export/registrants.csv?"+q.Encode())
}

func (a *App) sendSubscribers(ctx context.Context, tgID int64) error {
	out, err := a.svc.ExportSubscribers(ctx, a.sessionFor(tgID))
	if err != nil {
		return a.report(tgID, err)
	}
	if out.Content == "" {
		return a.SendText(tgID, "Nema pretplatnika.")
	}
	return a.sendDocument(tgID, out)
}

func (a *App) sendDocument(tgID int64, out tourney.Export) error {
	doc := tgbotapi.NewDocument(tgID, tgbotapi.FileBytes{Name: out.Name, Bytes: []byte(out.Content)})
	_, err := a.bot.Send(doc)
	return err
}

func (a *App) publicURL() string {
	if a.cfg.BasePublicURL != "" {
		return a.cfg.BasePublicURL
	}
	return "http://localhost" + a.cfg.HTTPAddr
}

// ---------- Flows ----------

func (a *App) handleRegistrationFlow(ctx context.Context, tgID int64, txt string, st userState) error {
	if st.Data == nil {
		st.Data = map[string]string{}
	}
	value := normalize.Text(txt)

	switch st.Step {
	case 1:
		if value == "" {
			return a.SendText(tgID, "Ime ne može biti prazno. Upiši ime:")
		}
		st.Data["first_name"] = value
		st.Step = 2
		a.state[tgID] = st
		return a.SendText(tgID, "Upiši prezime:")
	case 2:
		if value == "" {
			return a.SendText(tgID, "Prezime ne može biti prazno. Upiši prezime:")
		}
		st.Data["last_name"] = value
		st.Step = 3
		a.state[tgID] = st
		return a.SendText(tgID, "Upiši Neuron ID:")
	case 3:
		if normalize.Identifier(txt) == "" {
			return a.SendText(tgID, "Neuron ID ne može biti prazan. Upiši Neuron ID:")
		}
		a.state[tgID] = userState{}
		reg, err := a.svc.Register(ctx, st.Data["event_id"], models.RegistrationInput{
			FirstName: st.Data["first_name"],
			LastName:  st.Data["last_name"],
			NeuronID:  txt,
		})
		if err != nil {
			return a.report(tgID, err)
		}
		return a.SendText(tgID, fmt.Sprintf("✅ Prijavljen: %s %s (%s). /start", reg.FirstName, reg.LastName, reg.NeuronID))
	default:
		a.state[tgID] = userState{}
		return a.SendText(tgID, "Prijava završena. /start")
	}
}

func (a *App) handleUnregisterFlow(ctx context.Context, tgID int64, txt string, st userState) error {
	if normalize.Identifier(txt) == "" {
		return a.SendText(tgID, "Neuron ID ne može biti prazan. Upiši Neuron ID:")
	}
	a.state[tgID] = userState{}
	if err := a.svc.Unregister(ctx, st.Data["event_id"], txt); err != nil {
		return a.report(tgID, err)
	}
	return a.SendText(tgID, "✅ Odjava uspješna. /start")
}

func (a *App) handleSubscribeFlow(ctx context.Context, tgID int64, txt string) error {
	created, err := a.svc.Subscribe(ctx, txt)
	if apperr.CodeOf(err) == apperr.CodeValidation {
		return a.SendText(tgID, "Neispravna adresa. Upiši email ponovno ili /cancel:")
	}
	a.state[tgID] = userState{}
	if err != nil {
		return a.report(tgID, err)
	}
	if !created {
		return a.SendText(tgID, "Ta adresa je već na popisu.")
	}
	return a.SendText(tgID, "✅ Pretplaćeno.")
}

func (a *App) handleAdminDeleteFlow(ctx context.Context, tgID int64, txt string, st userState) error {
	a.state[tgID] = userState{}
	if !util.IsYes(txt) {
		return a.SendText(tgID, "Brisanje otkazano.")
	}
	if err := a.svc.DeleteEvent(ctx, a.sessionFor(tgID), st.Data["event_id"]); err != nil {
		return a.report(tgID, err)
	}
	return a.SendText(tgID, "🗑 Turnir obrisan.")
}
