package train

import (
	"fmt"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"emotion-recognition/emotion"
)

// ConfusionMatrix counts predictions per (true class, predicted class)
// pair. Rows are true labels, columns predictions.
type ConfusionMatrix struct {
	Counts [][]int
	Labels []string
}

// NewConfusionMatrix builds an empty matrix over the fixed emotion set.
func NewConfusionMatrix() *ConfusionMatrix {
	counts := make([][]int, emotion.NumClasses)
	for i := range counts {
		counts[i] = make([]int, emotion.NumClasses)
	}
	return &ConfusionMatrix{
		Counts: counts,
		Labels: append([]string(nil), emotion.Emotions...),
	}
}

// Add records one prediction.
func (c *ConfusionMatrix) Add(trueIdx, predIdx int) {
	c.Counts[trueIdx][predIdx]++
}

// RowSums returns the per-class sample counts.
func (c *ConfusionMatrix) RowSums() []int {
	sums := make([]int, len(c.Counts))
	for i, row := range c.Counts {
		for _, v := range row {
			sums[i] += v
		}
	}
	return sums
}

// Accuracy is the trace over the total count.
func (c *ConfusionMatrix) Accuracy() float64 {
	var correct, total int
	for i, row := range c.Counts {
		for j, v := range row {
			if i == j {
				correct += v
			}
			total += v
		}
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}

// ClassMetrics holds one class's evaluation scores.
type ClassMetrics struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// PerClass computes precision, recall and F1 for every class. Classes with
// no samples or no predictions score zero.
func (c *ConfusionMatrix) PerClass() []ClassMetrics {
	metrics := make([]ClassMetrics, len(c.Labels))
	for i, label := range c.Labels {
		var predicted int
		for r := range c.Counts {
			predicted += c.Counts[r][i]
		}
		support := 0
		for _, v := range c.Counts[i] {
			support += v
		}
		tp := c.Counts[i][i]

		m := ClassMetrics{Label: label, Support: support}
		if predicted > 0 {
			m.Precision = float64(tp) / float64(predicted)
		}
		if support > 0 {
			m.Recall = float64(tp) / float64(support)
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		metrics[i] = m
	}
	return metrics
}

// String renders an aligned text table for logs.
func (c *ConfusionMatrix) String() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-10s", ""))
	for _, label := range c.Labels {
		b.WriteString(fmt.Sprintf("%10s", label))
	}
	b.WriteString("\n")
	for i, row := range c.Counts {
		b.WriteString(fmt.Sprintf("%-10s", c.Labels[i]))
		for _, v := range row {
			b.WriteString(fmt.Sprintf("%10d", v))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// confusionGrid adapts the matrix to the heat map's grid interface. Row 0
// of the counts is drawn at the top.
type confusionGrid struct {
	m *ConfusionMatrix
}

func (g confusionGrid) Dims() (int, int) { return len(g.m.Labels), len(g.m.Labels) }
func (g confusionGrid) X(c int) float64  { return float64(c) }
func (g confusionGrid) Y(r int) float64  { return float64(r) }
func (g confusionGrid) Z(c, r int) float64 {
	return float64(g.m.Counts[len(g.m.Labels)-1-r][c])
}

// SavePNG renders the matrix as a heat map image.
func (c *ConfusionMatrix) SavePNG(path string) error {
	p := plot.New()
	p.Title.Text = "Confusion Matrix"
	p.X.Label.Text = "Predicted"
	p.Y.Label.Text = "True"

	heatMap := plotter.NewHeatMap(confusionGrid{m: c}, palette.Heat(12, 1))
	p.Add(heatMap)

	ticks := make([]plot.Tick, len(c.Labels))
	for i, label := range c.Labels {
		ticks[i] = plot.Tick{Value: float64(i), Label: label}
	}
	p.X.Tick.Marker = plot.ConstantTicks(ticks)

	yTicks := make([]plot.Tick, len(c.Labels))
	for i, label := range c.Labels {
		yTicks[len(c.Labels)-1-i] = plot.Tick{Value: float64(len(c.Labels) - 1 - i), Label: label}
	}
	p.Y.Tick.Marker = plot.ConstantTicks(yTicks)

	if err := p.Save(6*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save confusion matrix plot: %w", err)
	}
	return nil
}
