package nn

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

const (
	testNMels    = 64
	testSteps    = 100
	testNClasses = 5
)

func randomBatch(n int, seed int64) []*mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	batch := make([]*mat.Dense, n)
	for i := range batch {
		sample := mat.NewDense(testNMels, testSteps, nil)
		for m := 0; m < testNMels; m++ {
			for ts := 0; ts < testSteps; ts++ {
				sample.Set(m, ts, rng.NormFloat64())
			}
		}
		batch[i] = sample
	}
	return batch
}

func TestForwardProducesLogitsPerClass(t *testing.T) {
	t.Parallel()

	net := NewEmotionClassifier(testNMels, testNClasses, 0.3, 1)
	logits := net.Forward(randomBatch(4, 2), false)

	if len(logits) != 4 {
		t.Fatalf("got %d outputs, want 4", len(logits))
	}
	for i, l := range logits {
		rows, cols := l.Dims()
		if rows != testNClasses || cols != 1 {
			t.Fatalf("sample %d: logit shape (%d, %d), want (%d, 1)", i, rows, cols, testNClasses)
		}
	}
}

func TestPredictProbaSumsToOne(t *testing.T) {
	t.Parallel()

	net := NewEmotionClassifier(testNMels, testNClasses, 0.3, 3)
	probs := net.PredictProba(randomBatch(1, 4)[0])

	var sum float64
	for _, p := range probs {
		if p < 0 || p > 1 {
			t.Fatalf("probability %f outside [0, 1]", p)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("probabilities sum to %f, want 1", sum)
	}
}

func TestSeededInitIsDeterministic(t *testing.T) {
	t.Parallel()

	a := NewEmotionClassifier(testNMels, testNClasses, 0.3, 7)
	b := NewEmotionClassifier(testNMels, testNClasses, 0.3, 7)

	sample := randomBatch(1, 8)[0]
	pa := a.PredictProba(sample)
	pb := b.PredictProba(sample)
	for i := range pa {
		if pa[i] != pb[i] {
			t.Fatalf("equal seeds produced different predictions: %v vs %v", pa, pb)
		}
	}
}

func TestStateMapRoundTrip(t *testing.T) {
	t.Parallel()

	src := NewEmotionClassifier(testNMels, testNClasses, 0.3, 11)
	dst := NewEmotionClassifier(testNMels, testNClasses, 0.3, 12)

	sample := randomBatch(1, 13)[0]
	before := dst.PredictProba(sample)

	if err := dst.LoadStateMap(src.StateMap()); err != nil {
		t.Fatalf("LoadStateMap failed: %v", err)
	}

	want := src.PredictProba(sample)
	got := dst.PredictProba(sample)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("restored network disagrees with source: %v vs %v", got, want)
		}
	}

	same := true
	for i := range before {
		if before[i] != got[i] {
			same = false
		}
	}
	if same {
		t.Error("LoadStateMap did not change the target network")
	}
}

func TestLoadStateMapRejectsMissingParameter(t *testing.T) {
	t.Parallel()

	net := NewEmotionClassifier(testNMels, testNClasses, 0.3, 20)
	state := net.StateMap()
	delete(state, "conv1.weight")

	if err := net.LoadStateMap(state); err == nil {
		t.Error("expected error for missing parameter")
	}
}

func TestTrainingStepReducesLoss(t *testing.T) {
	t.Parallel()

	net := NewEmotionClassifier(testNMels, testNClasses, 0, 30)
	optimizer := NewAdam(net.Params(), 1e-3)

	batch := randomBatch(8, 31)
	targets := []int{0, 1, 2, 3, 4, 0, 1, 2}

	logits := net.Forward(batch, true)
	initial, grads := SoftmaxCrossEntropy(logits, targets)
	net.Backward(grads)
	optimizer.Step()

	var final float64
	for i := 0; i < 30; i++ {
		logits = net.Forward(batch, true)
		var g []*mat.Dense
		final, g = SoftmaxCrossEntropy(logits, targets)
		net.Backward(g)
		optimizer.Step()
	}

	if final >= initial {
		t.Errorf("loss did not decrease: initial %.4f, final %.4f", initial, final)
	}
}

func TestMaxPoolOutLen(t *testing.T) {
	t.Parallel()

	pool := NewMaxPool1D(2, 2)
	cases := [][2]int{{100, 50}, {50, 25}, {25, 12}, {1, 0}}
	for _, c := range cases {
		if got := pool.OutLen(c[0]); got != c[1] {
			t.Errorf("OutLen(%d) = %d, want %d", c[0], got, c[1])
		}
	}
}

func TestSoftmaxCrossEntropyGradientSign(t *testing.T) {
	t.Parallel()

	logits := []*mat.Dense{mat.NewDense(3, 1, []float64{1, 2, 3})}
	_, grads := SoftmaxCrossEntropy(logits, []int{1})

	// only the target class gradient is negative
	if grads[0].At(1, 0) >= 0 {
		t.Error("target class gradient should be negative")
	}
	if grads[0].At(0, 0) <= 0 || grads[0].At(2, 0) <= 0 {
		t.Error("non-target class gradients should be positive")
	}
}
