package tgbot

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tournament-desk/internal/config"
	"tournament-desk/internal/models"
	"tournament-desk/internal/session"
	"tournament-desk/internal/store/local"
	"tournament-desk/internal/tourney"
)

const (
	visitorID int64 = 100
	adminID   int64 = 1
)

type fakeBot struct {
	texts []string
	docs  []tgbotapi.FileBytes
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		f.texts = append(f.texts, m.Text)
	case tgbotapi.DocumentConfig:
		if fb, ok := m.File.(tgbotapi.FileBytes); ok {
			f.docs = append(f.docs, fb)
		}
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeBot) last() string {
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

func newTestApp(t *testing.T, playerCap string) (*App, *fakeBot, string) {
	t.Helper()
	st, err := local.Open(context.Background(), filepath.Join(t.TempDir(), "tourney.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	svc := tourney.New(st, nil)

	img := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 16)...)
	ev, err := svc.CreateEvent(context.Background(), &session.Session{Admin: true}, models.EventDraft{
		Title: "Cup", Location: "Zagreb", Date: "01/03/26",
		PreregStartDate: "01/02/26", PreregEndDate: "20/02/26",
		RegStartTime: "09:00", TournamentStartTime: "10:00",
		PreregFee: "10", NonRegFee: "12", PlayerCap: playerCap, SwissRounds: "3", TopCut: "Top 4",
		ImageDataURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
	})
	if err != nil {
		t.Fatal(err)
	}

	bot := &fakeBot{}
	cfg := config.Config{AdminTGIDs: map[int64]bool{adminID: true}, ExportSecret: "x", BasePublicURL: "https://desk.example"}
	return newApp(cfg, svc, bot), bot, ev.ID
}

func say(t *testing.T, a *App, from int64, text string) {
	t.Helper()
	if err := a.handleMessage(context.Background(), &tgbotapi.Message{From: &tgbotapi.User{ID: from}, Text: text}); err != nil {
		t.Fatalf("handleMessage(%q) error = %v", text, err)
	}
}

func press(t *testing.T, a *App, from int64, data string) {
	t.Helper()
	if err := a.handleCallback(context.Background(), &tgbotapi.CallbackQuery{ID: "cb", From: &tgbotapi.User{ID: from}, Data: data}); err != nil {
		t.Fatalf("handleCallback(%q) error = %v", data, err)
	}
}

func TestRegisterFlow(t *testing.T) {
	a, bot, eventID := newTestApp(t, "1")

	press(t, a, visitorID, "u:reg:"+eventID)
	say(t, a, visitorID, "Ana")
	say(t, a, visitorID, "   ")
	if !strings.Contains(bot.last(), "Prezime ne može biti prazno") {
		t.Errorf("blank last name reply = %q", bot.last())
	}
	say(t, a, visitorID, "Babić")
	say(t, a, visitorID, "abc 123")
	if !strings.Contains(bot.last(), "Ana Babić (ABC123)") {
		t.Errorf("confirmation = %q", bot.last())
	}

	press(t, a, visitorID+1, "u:reg:"+eventID)
	if !strings.Contains(bot.last(), "player cap") {
		t.Errorf("full event reply = %q", bot.last())
	}

	press(t, a, visitorID, "u:events")
	if !strings.Contains(bot.last(), "1 / 1") || !strings.Contains(bot.last(), "popunjeno") {
		t.Errorf("events screen = %q", bot.last())
	}
}

func TestUnregisterFlow(t *testing.T) {
	a, bot, eventID := newTestApp(t, "4")
	_, _ = a.svc.Register(context.Background(), eventID, models.RegistrationInput{FirstName: "Ana", LastName: "B", NeuronID: "ABC123"})

	press(t, a, visitorID, "u:unreg:"+eventID)
	say(t, a, visitorID, "abc123")
	if !strings.Contains(bot.last(), "Odjava uspješna") {
		t.Errorf("unregister reply = %q", bot.last())
	}

	press(t, a, visitorID, "u:unreg:"+eventID)
	say(t, a, visitorID, "abc123")
	if !strings.Contains(bot.last(), "No registration found") {
		t.Errorf("second unregister reply = %q", bot.last())
	}
}

func TestSubscribeFlow(t *testing.T) {
	a, bot, _ := newTestApp(t, "4")

	press(t, a, visitorID, "u:subscribe")
	say(t, a, visitorID, "not an email")
	if !strings.Contains(bot.last(), "Neispravna adresa") {
		t.Errorf("invalid email reply = %q", bot.last())
	}
	say(t, a, visitorID, "Ana@Example.com")
	if !strings.Contains(bot.last(), "Pretplaćeno") {
		t.Errorf("subscribe reply = %q", bot.last())
	}
}

func TestAdminExportAndDelete(t *testing.T) {
	a, bot, eventID := newTestApp(t, "4")
	_, _ = a.svc.Register(context.Background(), eventID, models.RegistrationInput{FirstName: "Ana", LastName: "Babić", NeuronID: "n1"})

	press(t, a, visitorID, "a:export:"+eventID)
	if bot.last() != "Pristup odbijen." || len(bot.docs) != 0 {
		t.Errorf("visitor export = %q, %d docs", bot.last(), len(bot.docs))
	}

	press(t, a, adminID, "a:export:"+eventID)
	if len(bot.docs) != 1 || string(bot.docs[0].Bytes) != "Cup | 01/03/26 | Zagreb\nAna-Babić-N1\n" {
		t.Fatalf("export document = %+v", bot.docs)
	}
	if !strings.HasPrefix(bot.last(), "📤 CSV (link): https://desk.example/export/registrants.csv?") {
		t.Errorf("export link = %q", bot.last())
	}

	press(t, a, adminID, "a:delete:"+eventID)
	say(t, a, adminID, "ne")
	if bot.last() != "Brisanje otkazano." {
		t.Errorf("cancelled delete reply = %q", bot.last())
	}
	press(t, a, adminID, "a:delete:"+eventID)
	say(t, a, adminID, "DA")
	if _, err := a.svc.GetEvent(context.Background(), eventID); err == nil {
		t.Error("event survived confirmed delete")
	}
}

func TestServeStopsWhenUpdatesClose(t *testing.T) {
	a, bot, _ := newTestApp(t, "4")
	updates := make(chan tgbotapi.Update, 1)
	updates <- tgbotapi.Update{Message: &tgbotapi.Message{From: &tgbotapi.User{ID: visitorID}, Text: "/start"}}
	close(updates)

	done := make(chan error, 1)
	go func() { done <- a.serve(context.Background(), updates) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("serve() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve() kept running after the updates channel closed")
	}
	if len(bot.texts) == 0 {
		t.Error("update queued before close was not handled")
	}
}
