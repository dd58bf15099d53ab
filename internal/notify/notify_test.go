package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

type stubSender struct {
	name   string
	err    error
	titles []string
}

func (s *stubSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func event(kind domain.EventKind) domain.Event {
	return domain.NewEvent(kind, 7, domain.Identity{1}, time.Unix(0, 0))
}

func TestNotifier_DefaultFilter(t *testing.T) {
	s := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{s}, nil, nil)
	ctx := context.Background()

	for _, k := range []domain.EventKind{domain.EventBetPlaced, domain.EventOutcomeChallenged, domain.EventMarketSettled} {
		if err := n.NotifyEvent(ctx, event(k)); err != nil {
			t.Fatalf("NotifyEvent(%s): %v", k, err)
		}
	}
	if len(s.titles) != 2 || s.titles[0] != "Market 7 disputed" || s.titles[1] != "Market 7 settled" {
		t.Errorf("titles = %v", s.titles)
	}
}

func TestNotifier_SenderFailureDoesNotStopOthers(t *testing.T) {
	boom := errors.New("boom")
	bad, good := &stubSender{name: "bad", err: boom}, &stubSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, []string{"market_cancelled"}, nil)

	err := n.NotifyEvent(context.Background(), event(domain.EventMarketCancelled))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if len(good.titles) != 1 {
		t.Error("second sender skipped")
	}
	if n.Wants(domain.EventMarketSettled) {
		t.Error("explicit filter still allows market_settled")
	}
}

func TestFormat_Settled(t *testing.T) {
	e := event(domain.EventMarketSettled)
	opt := 1
	e.Option = &opt
	e.AdminResolution = true
	e.TotalPool = 500
	_, msg := Format(e)
	for _, want := range []string{"winning option: 1", "resolved by admin", "pool: 500"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42").WithAPIBase(srv.URL)
	if err := s.Send(context.Background(), "a<b", "one_sided"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["chat_id"] != "42" || got["text"] != "<b>a&lt;b</b>\none_sided" {
		t.Errorf("payload = %v", got)
	}
}

func TestDiscordSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v", err)
	}
}
