package train

// EarlyStopping halts training once the count of epochs without a strict
// improvement in validation accuracy exceeds Patience. Ties do not reset
// the counter.
type EarlyStopping struct {
	Patience int

	best    float64
	hasBest bool
	badRuns int
}

// NewEarlyStopping builds a monitor with the given patience.
func NewEarlyStopping(patience int) *EarlyStopping {
	return &EarlyStopping{Patience: patience}
}

// Observe records one epoch's validation accuracy and reports whether it
// improved on the best so far and whether training should stop.
func (e *EarlyStopping) Observe(valAcc float64) (improved, stop bool) {
	if !e.hasBest || valAcc > e.best {
		e.best = valAcc
		e.hasBest = true
		e.badRuns = 0
		return true, false
	}
	e.badRuns++
	return false, e.badRuns > e.Patience
}

// Best returns the best accuracy seen so far.
func (e *EarlyStopping) Best() float64 { return e.best }

// PlateauScheduler multiplies the learning rate by Factor once the count
// of epochs without validation-loss improvement exceeds Patience, then
// resets its counter.
type PlateauScheduler struct {
	Patience int
	Factor   float64
	MinLR    float64

	best    float64
	hasBest bool
	badRuns int
}

// NewPlateauScheduler builds a scheduler with the standard policy: 3
// stagnant epochs are tolerated, the 4th halves the rate, never below 1e-6.
func NewPlateauScheduler() *PlateauScheduler {
	return &PlateauScheduler{Patience: 3, Factor: 0.5, MinLR: 1e-6}
}

// Observe records one epoch's validation loss and returns the learning
// rate to use next, given the current one.
func (s *PlateauScheduler) Observe(valLoss, currentLR float64) float64 {
	if !s.hasBest || valLoss < s.best {
		s.best = valLoss
		s.hasBest = true
		s.badRuns = 0
		return currentLR
	}
	s.badRuns++
	if s.badRuns <= s.Patience {
		return currentLR
	}
	s.badRuns = 0
	lr := currentLR * s.Factor
	if lr < s.MinLR {
		lr = s.MinLR
	}
	return lr
}
