package alert

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSendSetsTimestampAndARM(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, 5*time.Minute)

	if err := mgr.Send(Alert{Level: LevelInfo, ARM: "lido", Message: "hello"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	got := mock.GetAlerts()
	if len(got) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(got))
	}
	if got[0].Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
	if got[0].Fields["arm"] != "lido" {
		t.Errorf("arm should be copied into fields: %+v", got[0].Fields)
	}
}

func TestThrottlingPerARMAndEvent(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, time.Minute)
	clock := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mgr.throttle.now = func() time.Time { return clock }

	rpc := errors.New("rpc down")
	mgr.RunFailed("lido", "chain", rpc)
	mgr.RunFailed("lido", "chain", rpc)
	if mock.Count() != 1 {
		t.Fatalf("same arm and kind should be throttled, got %d", mock.Count())
	}
	// 不同 ARM、不同失败类型各自计数
	mgr.RunFailed("origin", "chain", rpc)
	mgr.RunFailed("lido", "rate_limited", rpc)
	if mock.Count() != 3 {
		t.Fatalf("expected 3 alerts, got %d", mock.Count())
	}

	clock = clock.Add(time.Minute)
	mgr.RunFailed("lido", "chain", rpc)
	if mock.Count() != 4 {
		t.Errorf("after throttle period: expected 4 alerts, got %d", mock.Count())
	}
}

func TestSubmissionsAreNeverThrottled(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, time.Hour)
	mgr.PricesSubmitted("lido", "0.999", "1.001", "0x01")
	mgr.PricesSubmitted("lido", "0.999", "1.001", "0x02")
	if mock.Count() != 2 {
		t.Fatalf("every submission should alert, got %d", mock.Count())
	}
}

func TestResetThrottle(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, time.Hour)
	mgr.BoundContradiction("lido", "0.998", "0.9985")
	mgr.ResetThrottle()
	mgr.BoundContradiction("lido", "0.998", "0.9985")
	if mock.Count() != 2 {
		t.Fatalf("reset should allow the alert again, got %d", mock.Count())
	}
}

func TestPartialChannelFailure(t *testing.T) {
	bad := NewMockChannel("bad")
	bad.SetShouldError(true)
	good := NewMockChannel("good")

	mgr := NewManager([]Channel{bad, good}, 5*time.Minute)
	if err := mgr.RunsResumed("lido"); err != nil {
		t.Errorf("should not return error when some channels succeed: %v", err)
	}
	if good.Count() != 1 {
		t.Errorf("successful channel should receive alert")
	}

	only := NewManager([]Channel{bad}, 5*time.Minute)
	err := only.RunsResumed("lido")
	if err == nil || !strings.Contains(err.Error(), "channel bad") {
		t.Errorf("expected channel error, got %v", err)
	}
	if names := mgr.Channels(); len(names) != 2 || names[0] != "bad" {
		t.Errorf("unexpected channels %v", names)
	}
}

func TestThrottlerResetAndClear(t *testing.T) {
	throttle := NewThrottler(5 * time.Minute)

	throttle.Allow("key1")
	throttle.Allow("key2")
	if throttle.Allow("key1") {
		t.Error("should be throttled")
	}
	throttle.Reset("key1")
	if !throttle.Allow("key1") {
		t.Error("after reset should be allowed")
	}
	throttle.Clear()
	if !throttle.Allow("key2") {
		t.Error("key2 should be allowed after clear")
	}
}

func TestPricingHelpers(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, 5*time.Minute)

	mgr.PricesSubmitted("lido", "0.999", "1.001", "0xabc")
	mgr.RunFailed("lido", "rate_limited", errors.New("429"))
	mgr.BoundContradiction("lido", "0.998", "0.9985")
	mgr.RunsSuspended("lido", 5, 5*time.Minute)
	mgr.RunsResumed("lido")

	alerts := mock.GetAlerts()
	want := []struct{ level, event string }{
		{LevelInfo, EventSubmitted},
		{LevelError, EventRunFailed},
		{LevelWarning, EventContradiction},
		{LevelCritical, EventSuspended},
		{LevelInfo, EventResumed},
	}
	if len(alerts) != len(want) {
		t.Fatalf("expected %d alerts, got %d", len(want), len(alerts))
	}
	for i, a := range alerts {
		if a.Level != want[i].level || a.Event != want[i].event {
			t.Errorf("alert %d = %s/%s, want %s/%s", i, a.Level, a.Event, want[i].level, want[i].event)
		}
		if a.Fields["arm"] != "lido" {
			t.Errorf("alert %d missing arm field", i)
		}
	}
	if alerts[1].Fields["error"] != "429" {
		t.Errorf("unexpected error field %v", alerts[1].Fields["error"])
	}
	if alerts[3].Fields["cooldown"] != "5m0s" {
		t.Errorf("unexpected cooldown field %v", alerts[3].Fields["cooldown"])
	}
}

func TestLogChannel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ch := NewLogChannel("log", zap.New(core))
	if ch.Name() != "log" {
		t.Errorf("name = %s, want log", ch.Name())
	}

	ch.Send(Alert{Level: LevelWarning, Event: EventContradiction, Message: "careful", Fields: map[string]interface{}{"arm": "lido"}})
	ch.Send(Alert{Level: LevelCritical, Message: "down"})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if entries[0].Level != zapcore.WarnLevel || ctx["arm"] != "lido" || ctx["alertEvent"] != EventContradiction {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Level != zapcore.ErrorLevel {
		t.Errorf("critical should log at error level, got %s", entries[1].Level)
	}
}

func TestConsoleChannel(t *testing.T) {
	var buf bytes.Buffer
	ch := &ConsoleChannel{name: "console", out: &buf}
	ch.Send(Alert{
		Level:     LevelError,
		ARM:       "lido",
		Message:   "boom",
		Timestamp: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
		Fields:    map[string]interface{}{"b": 2, "a": 1, "arm": "lido"},
	})
	msg := strings.TrimSpace(buf.String())
	if !strings.Contains(msg, "[ERROR]") || !strings.Contains(msg, "2025-03-01 08:00:00 lido - boom") {
		t.Errorf("unexpected console message %q", msg)
	}
	if !strings.HasSuffix(msg, "| a=1 b=2") {
		t.Errorf("fields should be sorted without arm: %q", msg)
	}
}

func TestConcurrentAlerts(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr := NewManager([]Channel{mock}, time.Minute)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			mgr.RunFailed("lido", "chain", errors.New("rpc"))
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	if mock.Count() != 1 {
		t.Errorf("concurrent failures should be throttled to one alert, got %d", mock.Count())
	}
}

func BenchmarkSend(b *testing.B) {
	mgr := NewManager([]Channel{NewMockChannel("mock")}, 5*time.Minute)
	alert := Alert{Level: LevelInfo, Event: EventResumed, Message: "benchmark"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mgr.Send(alert)
	}
}
