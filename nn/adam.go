package nn

import "math"

// Adam implements the Adam optimizer with bias-corrected moment estimates.
// The learning rate is mutable so a plateau scheduler can decay it
// mid-training; moment state survives the decay.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	params []*Param
	m      [][]float64
	v      [][]float64
	step   int
}

// NewAdam builds an optimizer over the given parameters with the standard
// moment coefficients.
func NewAdam(params []*Param, lr float64) *Adam {
	a := &Adam{
		LR:     lr,
		Beta1:  0.9,
		Beta2:  0.999,
		Eps:    1e-8,
		params: params,
		m:      make([][]float64, len(params)),
		v:      make([][]float64, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float64, len(p.Data))
		a.v[i] = make([]float64, len(p.Data))
	}
	return a
}

// Step applies one update from the accumulated gradients, then clears them.
func (a *Adam) Step() {
	a.step++
	c1 := 1 - math.Pow(a.Beta1, float64(a.step))
	c2 := 1 - math.Pow(a.Beta2, float64(a.step))

	for i, p := range a.params {
		m, v := a.m[i], a.v[i]
		for j := range p.Data {
			g := p.Grad[j]
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*g
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*g*g

			mhat := m[j] / c1
			vhat := v[j] / c2
			p.Data[j] -= a.LR * mhat / (math.Sqrt(vhat) + a.Eps)
		}
		p.ZeroGrad()
	}
}

// AdamState is the serializable optimizer state, keyed by parameter name.
type AdamState struct {
	LR   float64              `msgpack:"lr"`
	Step int                  `msgpack:"step"`
	M    map[string][]float64 `msgpack:"m"`
	V    map[string][]float64 `msgpack:"v"`
}

// State snapshots the optimizer for checkpointing.
func (a *Adam) State() AdamState {
	state := AdamState{
		LR:   a.LR,
		Step: a.step,
		M:    make(map[string][]float64, len(a.params)),
		V:    make(map[string][]float64, len(a.params)),
	}
	for i, p := range a.params {
		state.M[p.Name] = append([]float64(nil), a.m[i]...)
		state.V[p.Name] = append([]float64(nil), a.v[i]...)
	}
	return state
}

// LoadState restores a snapshot taken with State. Parameters missing from
// the snapshot keep zeroed moments.
func (a *Adam) LoadState(state AdamState) {
	a.LR = state.LR
	a.step = state.Step
	for i, p := range a.params {
		if m, ok := state.M[p.Name]; ok && len(m) == len(a.m[i]) {
			copy(a.m[i], m)
		}
		if v, ok := state.V[p.Name]; ok && len(v) == len(a.v[i]) {
			copy(a.v[i], v)
		}
	}
}
