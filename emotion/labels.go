package emotion

import "fmt"

// Emotions is the fixed class ordering shared by training, export and
// serving. The output tensor of every exported model follows this order;
// changing it invalidates every existing checkpoint and artifact.
var Emotions = []string{"happy", "sad", "angry", "surprised", "neutral"}

// NumClasses is the size of the fixed label set.
const NumClasses = 5

var emotionIndex = func() map[string]int {
	m := make(map[string]int, len(Emotions))
	for i, label := range Emotions {
		m[label] = i
	}
	return m
}()

// LabelIndex maps an emotion label to its class index. Labels outside the
// fixed set are a hard error.
func LabelIndex(label string) (int, error) {
	idx, ok := emotionIndex[label]
	if !ok {
		return 0, fmt.Errorf("unknown emotion label %q (known: %v)", label, Emotions)
	}
	return idx, nil
}

// LabelName maps a class index back to its emotion label.
func LabelName(index int) (string, error) {
	if index < 0 || index >= len(Emotions) {
		return "", fmt.Errorf("class index %d out of range [0, %d)", index, len(Emotions))
	}
	return Emotions[index], nil
}
