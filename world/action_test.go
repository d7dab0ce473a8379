package world

import (
	"math"
	"testing"
)

func TestAttackActionGuards(t *testing.T) {
	a := &AttackAction{Start: 0, PreHit: 2, PostHit: 3, Reload: 4, End: 5}

	tests := []struct {
		t           float64
		phase       Phase
		cancel      bool
		cancelSince float64
		move        bool
	}{
		{1, PhaseAiming, true, 0, false},
		{2.5, PhasePreHit, false, math.Inf(1), false},
		{3.5, PhasePostHit, false, math.Inf(1), false},
		{4.5, PhaseReloading, true, 4, false},
		{5, PhaseIdle, true, 4, true},
	}
	for _, tt := range tests {
		if got := a.Phase(tt.t); got != tt.phase {
			t.Errorf("Phase(%v) = %v, want %v", tt.t, got, tt.phase)
		}
		if got := a.AllowCancel(tt.t); got != tt.cancel {
			t.Errorf("AllowCancel(%v) = %v, want %v", tt.t, got, tt.cancel)
		}
		if got := a.AllowCancelSince(tt.t); got != tt.cancelSince {
			t.Errorf("AllowCancelSince(%v) = %v, want %v", tt.t, got, tt.cancelSince)
		}
		if got := a.AllowMovement(tt.t); got != tt.move {
			t.Errorf("AllowMovement(%v) = %v, want %v", tt.t, got, tt.move)
		}
	}
	if got := a.AllowMovementSince(5.5); got != 5 {
		t.Errorf("AllowMovementSince(5.5) = %v, want 5", got)
	}
	if !math.IsInf(a.AllowMovementSince(1), 1) {
		t.Errorf("AllowMovementSince(1) should be +Inf while active")
	}
}

func TestActionStateRoundTrip(t *testing.T) {
	a := NewAttackAction(30, 0.05, testDef(), 7)
	a.Fired = true
	state := actionState(a)
	if state.Kind != ActionAttack || state.TargetID != 7 || !state.Fired {
		t.Fatalf("state = %+v", state)
	}
	back, ok := state.Action().(*AttackAction)
	if !ok {
		t.Fatalf("Action() = %T, want *AttackAction", state.Action())
	}
	// Snapshots carry float32 times.
	if back.PostHit != float64(float32(a.PostHit)) || back.End != float64(float32(a.End)) {
		t.Fatalf("rebuilt = %+v", back)
	}
	if math.Abs(back.PostHit-2.05) > 1e-6 || math.Abs(back.End-2.5) > 1e-6 {
		t.Fatalf("rebuilt = %+v, want posthit 2.05 and end 2.5", back)
	}
	if actionState(nil) != (ActionState{}) {
		t.Fatalf("nil action should capture as ActionNone")
	}
	if (ActionState{}).Action() != nil {
		t.Fatalf("ActionNone should rebuild as nil")
	}
}

func TestAttackBoundariesOnTicks(t *testing.T) {
	const td = 0.05
	def := testDef()
	for start := Tick(0); start < 2000; start++ {
		a := NewAttackAction(start, td, def, 1)
		at := func(n Tick) float64 { return float64(start+n) * td }
		if a.Start != at(0) || a.PreHit != at(7) || a.PostHit != at(11) || a.Reload != at(17) || a.End != at(20) {
			t.Fatalf("start %d: boundaries = %+v", start, a)
		}
		if got := a.Phase(at(10)); got != PhasePreHit {
			t.Fatalf("start %d: phase one tick before posthit = %v", start, got)
		}
		if got := a.Phase(at(11)); got != PhasePostHit {
			t.Fatalf("start %d: phase at posthit = %v", start, got)
		}
		if a.Ended(at(19)) || !a.Ended(at(20)) {
			t.Fatalf("start %d: attack should end exactly at tick %d", start, start+20)
		}
	}
}

func TestPathPosition(t *testing.T) {
	p := NewPath(2, 2, Vec(0, 0), Vec(4, 0), Vec(4, 2))
	tests := []struct {
		t    float64
		want [2]float64
	}{
		{0, [2]float64{0, 0}},
		{2, [2]float64{0, 0}},
		{3, [2]float64{2, 0}},
		{4, [2]float64{4, 0}},
		{4.5, [2]float64{4, 1}},
		{10, [2]float64{4, 2}},
	}
	for _, tt := range tests {
		got := p.Position(tt.t)
		if math.Abs(got.X()-tt.want[0]) > 1e-9 || math.Abs(got.Y()-tt.want[1]) > 1e-9 {
			t.Errorf("Position(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
	if p.End() != 5 {
		t.Errorf("End() = %v, want 5", p.End())
	}
	if !StationaryPath(1, Vec(3, 3)).Done(1) {
		t.Errorf("stationary path should be done at its start")
	}
}
