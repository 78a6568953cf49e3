package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"watchbot/internal/config"
	"watchbot/internal/dispatch"
	"watchbot/internal/model"
	"watchbot/internal/scheduler"
	"watchbot/internal/storage"
)

// --- mocks ---

type sentMsg struct {
	ChatID int64
	Text   string
	Markup interface{}
}

type mockAPI struct {
	mu      sync.Mutex
	sent    []sentMsg
	sendErr error
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return tgbotapi.Message{}, m.sendErr
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, Text: msg.Text, Markup: msg.ReplyMarkup})
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(tgbotapi.UpdatesChannel)
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Text
}

// lastButtonData flattens the inline keyboard of the last message into
// its callback-data strings.
func (m *mockAPI) lastButtonData() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	markup, ok := m.sent[len(m.sent)-1].Markup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		return nil
	}
	var data []string
	for _, row := range markup.InlineKeyboard {
		for _, btn := range row {
			if btn.CallbackData != nil {
				data = append(data, *btn.CallbackData)
			}
		}
	}
	return data
}

type mockChecker struct {
	triggered []int64
	err       error
	status    scheduler.CycleStatus
}

func (m *mockChecker) TriggerCheck(_ context.Context, id int64) error {
	m.triggered = append(m.triggered, id)
	return m.err
}

func (m *mockChecker) Status() scheduler.CycleStatus {
	return m.status
}

func newTestBot(t *testing.T) (*Bot, *mockAPI, *storage.SQLite) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	api := &mockAPI{}
	b := &Bot{
		api:   api,
		store: store,
		cfg:   &config.Config{},
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return b, api, store
}

func addWatch(t *testing.T, store *storage.SQLite, chatID int64, name, query string) model.Subscription {
	t.Helper()
	sub := model.Subscription{ChatID: chatID, Name: name, Query: query, IsActive: true}
	if err := store.CreateSubscription(context.Background(), &sub); err != nil {
		t.Fatalf("create subscription: %v", err)
	}
	return sub
}

func TestHandleAddAndList(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t)

	b.handleAdd(ctx, 100, "mountain bike https://market.example.com/search.rss?q=mtb")
	if !strings.Contains(api.lastText(), "Watch added!") {
		t.Errorf("unexpected add reply: %s", api.lastText())
	}

	subs, err := store.ListSubscriptions(ctx, 100)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 || subs[0].Name != "mountain bike" {
		t.Fatalf("unexpected subscriptions: %+v", subs)
	}

	b.handleList(ctx, 100)
	if !strings.Contains(api.lastText(), "#1 mountain bike [active]") {
		t.Errorf("unexpected list reply: %s", api.lastText())
	}

	b.handleAdd(ctx, 100, "bad-args")
	if !strings.Contains(api.lastText(), "Usage:") {
		t.Errorf("expected usage hint, got: %s", api.lastText())
	}
}

func callbackQuery(chatID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: chatID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}
}

func TestHandleRemoveChecksOwnership(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t)
	sub := addWatch(t, store, 100, "mine", "https://x/1")

	// Another chat cannot remove it.
	b.handleRemove(ctx, 999, "1")
	if !strings.Contains(api.lastText(), "not found") {
		t.Errorf("expected not-found for foreign chat, got: %s", api.lastText())
	}
	if _, err := store.GetSubscription(ctx, sub.ID); err != nil {
		t.Fatal("subscription should still exist")
	}

	// The command only asks; nothing is deleted yet.
	b.handleRemove(ctx, 100, "1")
	if !strings.Contains(api.lastText(), "cannot be undone") {
		t.Errorf("expected confirmation prompt, got: %s", api.lastText())
	}
	if _, err := store.GetSubscription(ctx, sub.ID); err != nil {
		t.Fatal("subscription should survive the confirmation prompt")
	}
	buttons := api.lastButtonData()
	if len(buttons) != 2 || buttons[0] != "delete:1" {
		t.Fatalf("unexpected confirmation buttons: %v", buttons)
	}

	// Pressing the button deletes.
	b.handleCallback(ctx, callbackQuery(100, "delete:1"))
	if !strings.Contains(api.lastText(), "removed") {
		t.Errorf("expected removal confirmation, got: %s", api.lastText())
	}
	if _, err := store.GetSubscription(ctx, sub.ID); err == nil {
		t.Error("subscription should be gone")
	}
}

func TestDeleteCallbackChecksOwnership(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t)
	sub := addWatch(t, store, 100, "mine", "https://x/1")

	b.handleCallback(ctx, callbackQuery(999, "delete:1"))
	if !strings.Contains(api.lastText(), "not found") {
		t.Errorf("expected not-found for foreign chat, got: %s", api.lastText())
	}
	if _, err := store.GetSubscription(ctx, sub.ID); err != nil {
		t.Fatal("subscription should still exist")
	}
}

func TestAddAttachesCheckButton(t *testing.T) {
	ctx := context.Background()
	b, api, _ := newTestBot(t)
	checker := &mockChecker{}
	b.AttachScheduler(checker)

	b.handleAdd(ctx, 100, "mountain bike https://market.example.com/search.rss?q=mtb")
	buttons := api.lastButtonData()
	if len(buttons) != 1 || buttons[0] != "check:1" {
		t.Fatalf("unexpected add buttons: %v", buttons)
	}

	b.handleCallback(ctx, callbackQuery(100, "check:1"))
	if len(checker.triggered) != 1 || checker.triggered[0] != 1 {
		t.Errorf("expected check trigger for #1, got %v", checker.triggered)
	}
}

func TestPauseAndResume(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t)
	sub := addWatch(t, store, 100, "mine", "https://x/1")

	b.handlePause(ctx, 100, "1")
	got, err := store.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.IsActive {
		t.Error("expected subscription paused")
	}

	// Park it as degraded, then resume: resuming is a user edit and
	// must clear the flag.
	if err := store.SetDegraded(ctx, sub.ID, true); err != nil {
		t.Fatalf("set degraded: %v", err)
	}
	b.handleResume(ctx, 100, "1")
	got, err = store.GetSubscription(ctx, sub.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.IsActive {
		t.Error("expected subscription resumed")
	}
	if got.Degraded {
		t.Error("resume should clear the degraded flag")
	}
	if !strings.Contains(api.lastText(), "resumed") {
		t.Errorf("unexpected reply: %s", api.lastText())
	}
}

func TestHandleCheck(t *testing.T) {
	ctx := context.Background()
	b, api, store := newTestBot(t)
	sub := addWatch(t, store, 100, "mine", "https://x/1")

	checker := &mockChecker{}
	b.AttachScheduler(checker)

	b.handleCheck(ctx, 100, "1")
	if len(checker.triggered) != 1 || checker.triggered[0] != sub.ID {
		t.Errorf("expected trigger for #%d, got %v", sub.ID, checker.triggered)
	}
	if !strings.Contains(api.lastText(), "Checked #1") {
		t.Errorf("unexpected reply: %s", api.lastText())
	}

	checker.err = scheduler.ErrCheckInFlight
	b.handleCheck(ctx, 100, "1")
	if !strings.Contains(api.lastText(), "already being checked") {
		t.Errorf("unexpected reply: %s", api.lastText())
	}
}

func TestHandleStatus(t *testing.T) {
	b, api, _ := newTestBot(t)

	checker := &mockChecker{status: scheduler.CycleStatus{
		LastRunAt:      time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
		ActiveCount:    3,
		LastErrorCount: 1,
		DegradedCount:  2,
	}}
	b.AttachScheduler(checker)

	b.handleStatus(100)
	reply := api.lastText()
	for _, want := range []string{"Active watches: 3", "Failed last cycle: 1", "Degraded (need editing): 2"} {
		if !strings.Contains(reply, want) {
			t.Errorf("status reply missing %q:\n%s", want, reply)
		}
	}
}

func TestSendClassifiesTelegramErrors(t *testing.T) {
	tests := []struct {
		name            string
		apiErr          error
		wantRateLimited bool
		wantErr         bool
	}{
		{name: "success", apiErr: nil},
		{
			name: "flood control maps to rate limited",
			apiErr: &tgbotapi.Error{
				Code:               429,
				Message:            "Too Many Requests",
				ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 3},
			},
			wantRateLimited: true,
			wantErr:         true,
		},
		{
			name:    "other api error is permanent",
			apiErr:  &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, api, _ := newTestBot(t)
			api.sendErr = tt.apiErr

			err := b.Send(context.Background(), 100, "hello")
			if tt.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if got := errors.Is(err, dispatch.ErrRateLimited); got != tt.wantRateLimited {
				t.Errorf("rate-limited classification = %v, want %v (err: %v)", got, tt.wantRateLimited, err)
			}
		})
	}
}
