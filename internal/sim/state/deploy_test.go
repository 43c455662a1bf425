package state

import (
	"math"
	"testing"
	"time"
)

func TestDeployAnimationMovesTowardsTarget(t *testing.T) {
	a := NewDeployAnimation("dish", 0, 0.25)
	a.Deploy()

	for i := 0; i < 3; i++ {
		a.Advance(time.Second)
	}
	if got := a.DeployScalar(); math.Abs(got-0.75) > 1e-9 {
		t.Fatalf("scalar = %v, want 0.75", got)
	}
	a.Advance(10 * time.Second)
	if a.DeployScalar() != 1 {
		t.Fatalf("scalar should stop at 1, got %v", a.DeployScalar())
	}

	a.Retract()
	a.Advance(2 * time.Second)
	if got := a.DeployScalar(); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("scalar = %v, want 0.5", got)
	}
}

func TestDeployAnimationSnapsWithoutSpeed(t *testing.T) {
	a := NewDeployAnimation("boom", 2, 0)
	if a.DeployScalar() != 1 {
		t.Fatalf("start should clamp to 1, got %v", a.DeployScalar())
	}
	a.SetTarget(0.3)
	if a.DeployScalar() != 0.3 {
		t.Fatalf("scalar = %v, want 0.3", a.DeployScalar())
	}
}

func TestLinkWindow(t *testing.T) {
	w := NewLinkWindow(true)
	if !w.LinkOK() {
		t.Fatalf("window should start open")
	}
	if prev := w.Set(false); !prev || w.LinkOK() {
		t.Fatalf("Set(false) prev=%v ok=%v", prev, w.LinkOK())
	}
}
