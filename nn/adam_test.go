package nn

import (
	"math"
	"testing"
)

func adamParam(name string, data []float64) *Param {
	return &Param{
		Name: name,
		Data: append([]float64(nil), data...),
		Grad: make([]float64, len(data)),
	}
}

func setGrad(p *Param, grad []float64) {
	copy(p.Grad, grad)
}

func TestAdamStateRoundTripContinuesUpdates(t *testing.T) {
	t.Parallel()

	init := []float64{1.0, -2.0, 0.5}
	grad := []float64{0.1, -0.2, 0.3}

	// reference: two consecutive steps on one optimizer
	ref := adamParam("w", init)
	refOpt := NewAdam([]*Param{ref}, 1e-2)
	setGrad(ref, grad)
	refOpt.Step()
	setGrad(ref, grad)
	refOpt.Step()

	// one step, snapshot, restore into a fresh optimizer, second step
	first := adamParam("w", init)
	firstOpt := NewAdam([]*Param{first}, 1e-2)
	setGrad(first, grad)
	firstOpt.Step()
	state := firstOpt.State()

	resumed := adamParam("w", first.Data)
	resumedOpt := NewAdam([]*Param{resumed}, 999) // LR comes from the snapshot
	resumedOpt.LoadState(state)
	if resumedOpt.LR != 1e-2 {
		t.Fatalf("restored LR %.4f, want 0.01", resumedOpt.LR)
	}
	setGrad(resumed, grad)
	resumedOpt.Step()

	for i := range ref.Data {
		if math.Abs(resumed.Data[i]-ref.Data[i]) > 1e-12 {
			t.Fatalf("resumed update diverged at %d: %.12f vs %.12f",
				i, resumed.Data[i], ref.Data[i])
		}
	}
}

func TestAdamLoadStateIgnoresUnknownParams(t *testing.T) {
	t.Parallel()

	p := adamParam("w", []float64{1, 2})
	opt := NewAdam([]*Param{p}, 1e-3)
	opt.LoadState(AdamState{
		LR:   5e-4,
		Step: 3,
		M:    map[string][]float64{"other": {1}},
		V:    map[string][]float64{"w": {1, 2, 3}}, // wrong length, skipped
	})

	if opt.LR != 5e-4 {
		t.Errorf("LR %.5f, want 0.0005", opt.LR)
	}
	for i, m := range opt.m[0] {
		if m != 0 {
			t.Errorf("moment %d not zero after mismatched snapshot: %f", i, m)
		}
	}
}
