package model

import (
	"testing"
	"time"
)

func TestMarketStateAt(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m := Market{
		State:     StateOpen,
		StartTime: now.Add(-time.Hour),
		EndTime:   now.Add(time.Hour),
	}

	if got := m.StateAt(now); got != StateOpen {
		t.Fatalf("within window: %s, want open", got)
	}
	// janela vencida conta como closed sem transição persistida
	if got := m.StateAt(m.EndTime); got != StateClosed {
		t.Fatalf("at end time: %s, want closed", got)
	}
	if got := m.StateAt(m.EndTime.Add(time.Minute)); got != StateClosed {
		t.Fatalf("past end time: %s, want closed", got)
	}

	m.State = StateResolved
	if got := m.StateAt(now); got != StateResolved {
		t.Fatalf("resolved: %s", got)
	}
}

func TestMarketAcceptsStakes(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m := Market{
		State:     StateOpen,
		StartTime: now,
		EndTime:   now.Add(time.Hour),
	}

	if !m.AcceptsStakes(now) {
		t.Fatal("start time is inclusive")
	}
	if m.AcceptsStakes(now.Add(-time.Second)) {
		t.Fatal("before start must not accept")
	}
	if m.AcceptsStakes(m.EndTime) {
		t.Fatal("end time is exclusive")
	}

	m.State = StateClosed
	if m.AcceptsStakes(now) {
		t.Fatal("closed must not accept")
	}
}

func TestMarketTerminal(t *testing.T) {
	for state, want := range map[MarketState]bool{
		StateOpen:     false,
		StateClosed:   false,
		StateResolved: true,
		StateVoid:     true,
	} {
		m := Market{State: state}
		if m.Terminal() != want {
			t.Fatalf("%s: Terminal() = %v, want %v", state, m.Terminal(), want)
		}
	}
}

func TestValidKind(t *testing.T) {
	for _, k := range []EntryKind{KindStake, KindPayout, KindRefund, KindReward, KindAdjustment} {
		if !ValidKind(k) {
			t.Fatalf("%s should be valid", k)
		}
	}
	if ValidKind(EntryKind("bonus")) || ValidKind(EntryKind("")) {
		t.Fatal("unknown kinds must be rejected")
	}
}
