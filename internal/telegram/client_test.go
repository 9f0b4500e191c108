package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/skinscout/internal/clock"
	"github.com/rewired-gh/skinscout/internal/models"
	"github.com/rewired-gh/skinscout/internal/scan"
)

type fakeSender struct {
	mu       sync.Mutex
	failures int
	sent     []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return tgbotapi.Message{}, errors.New("Too Many Requests: retry after 1")
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Text)
	}
	return out
}

type fakeController struct {
	mu      sync.Mutex
	running bool
	runs    []scan.Mode
	runErr  error
	done    chan struct{}
}

func (f *fakeController) Run(_ context.Context, mode scan.Mode) error {
	f.mu.Lock()
	f.runs = append(f.runs, mode)
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return f.runErr
}

func (f *fakeController) Stop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.running
	f.running = false
	return was
}

func (f *fakeController) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeController) Status() scan.Status {
	return scan.Status{
		Running:   f.Running(),
		Mode:      scan.ModeDecorations,
		RunID:     "run-1",
		Passes:    4,
		Alerts:    2,
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestClient(s *fakeSender) (*Client, *clock.Fake) {
	clk := clock.NewFake(time.Time{})
	return newClient(s, 42, 3, time.Second, clk), clk
}

func decorationAlert() scan.Alert {
	item := models.NewDecorationItem(
		models.PricedItem{ListingID: "5001", Name: "AK-47 | Redline (Field-Tested)", Price: decimal.RequireFromString("31.5"), Page: 2},
		decimal.RequireFromString("25"),
		[]models.Decoration{
			{Name: "Sticker | Crown (Foil)", Price: decimal.RequireFromString("800")},
			{Name: "Sticker | <script>", Price: decimal.RequireFromString("2.5")},
		},
	)
	return scan.Alert{Mode: scan.ModeDecorations, Item: item, URL: "https://steamcommunity.com/market/listings/730/AK-47%20%7C%20Redline?a=1&b=2"}
}

func TestFormatAlert_Decoration(t *testing.T) {
	got := FormatAlert(decorationAlert())

	wants := []string{
		"Page: 2\n",
		"listings/730/AK-47%20%7C%20Redline?a=1&amp;b=2",
		"Item: AK-47 | Redline (Field-Tested)",
		"Average Price: <b>25.00$</b>",
		"Price: <b>31.50$</b>",
		"Decoration overprice: <b>6.50$</b>",
		"Decoration overprice %: <b>0.81%</b>",
		"Decorations total price: <b>802.50$</b>",
		"Decorations 2:",
		"\nSticker | Crown (Foil), Price: 800.00$",
		"Sticker | &lt;script&gt;, Price: 2.50$",
	}
	for _, want := range wants {
		if !strings.Contains(got, want) {
			t.Errorf("message missing %q:\n%s", want, got)
		}
	}
}

func TestFormatAlert_Pattern(t *testing.T) {
	item := models.PatternItem{
		PricedItem:   models.PricedItem{ListingID: "1", Name: "AK-47 | Case Hardened (Minimal Wear)", Price: decimal.RequireFromString("110"), Page: 1},
		AveragePrice: decimal.RequireFromString("100"),
		PatternValue: 0.0712,
		PatternSeed:  661,
	}
	got := FormatAlert(scan.Alert{Mode: scan.ModePatterns, Item: item, URL: "u"})

	wants := []string{
		"Pattern overprice: 10.00$",
		"Pattern overprice %: 10.00%",
		"Float: <b>0.0712</b>",
		"Pattern: <b>661</b>",
	}
	for _, want := range wants {
		if !strings.Contains(got, want) {
			t.Errorf("message missing %q:\n%s", want, got)
		}
	}
}

func TestDeliver_RetriesWithBackoff(t *testing.T) {
	s := &fakeSender{failures: 2}
	c, clk := newTestClient(s)

	if err := c.Deliver(context.Background(), decorationAlert()); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	sent := s.sent
	if len(sent) != 1 {
		t.Fatalf("got %d messages, want 1", len(sent))
	}
	if sent[0].ParseMode != tgbotapi.ModeHTML || sent[0].ChatID != 42 {
		t.Errorf("got parse mode %q chat %d", sent[0].ParseMode, sent[0].ChatID)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	got := clk.Sleeps()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got sleeps %v, want %v", got, want)
	}
}

func TestDeliver_GivesUp(t *testing.T) {
	s := &fakeSender{failures: 5}
	c, _ := newTestClient(s)

	err := c.Deliver(context.Background(), decorationAlert())
	if err == nil || !strings.Contains(err.Error(), "failed after 3 retries") {
		t.Errorf("got %v, want retry exhaustion", err)
	}
}

func TestHandleCommand(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		command string
		running bool
		want    string
	}{
		{"ping", "ping", false, "Pong"},
		{"stop idle", "stop", false, "No scan is running"},
		{"stop running", "stop", true, "Stopping the scan"},
		{"start while running", "patterns", true, "already running"},
		{"status", "status", true, "Passes: 4"},
		{"help", "help", false, "/decorations"},
		{"unknown", "bogus", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(&fakeSender{})
			ctrl := &fakeController{running: tt.running}
			got := c.handleCommand(ctx, tt.command, ctrl)
			if tt.want == "" {
				if got != "" {
					t.Errorf("got %q, want no reply", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("got %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestHandleCommand_StartsScan(t *testing.T) {
	s := &fakeSender{}
	c, _ := newTestClient(s)
	ctrl := &fakeController{done: make(chan struct{}), runErr: errors.New("failed to load targets")}

	reply := c.handleCommand(context.Background(), "decorations", ctrl)
	if !strings.Contains(reply, "decorations") {
		t.Errorf("got reply %q", reply)
	}
	<-ctrl.done

	deadline := time.Now().Add(2 * time.Second)
	for len(s.texts()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	texts := s.texts()
	if len(texts) != 1 || !strings.Contains(texts[0], "failed to load targets") {
		t.Errorf("got error notifications %v", texts)
	}
	if ctrl.runs[0] != scan.ModeDecorations {
		t.Errorf("got mode %s", ctrl.runs[0])
	}
}

func TestHandleCommand_LostStartRaceIsQuiet(t *testing.T) {
	s := &fakeSender{}
	c, _ := newTestClient(s)
	ctrl := &fakeController{done: make(chan struct{}), runErr: scan.ErrAlreadyRunning}

	reply := c.handleCommand(context.Background(), "patterns", ctrl)
	if !strings.Contains(reply, "patterns") {
		t.Errorf("got reply %q", reply)
	}
	<-ctrl.done

	time.Sleep(50 * time.Millisecond)
	if texts := s.texts(); len(texts) != 0 {
		t.Errorf("expected no error notification, got %v", texts)
	}
}

func TestFormatStatus_NoRun(t *testing.T) {
	if got := formatStatus(scan.Status{}); got != "No scan has run yet" {
		t.Errorf("got %q", got)
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	if _, err := NewClient("", "not-a-number", 3, time.Second); err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}
