package db

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"emotion-recognition/models"
)

func testClient(t *testing.T) *SQLiteClient {
	t.Helper()
	client, err := NewSQLiteClient(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteClient failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func storeSample(t *testing.T, client *SQLiteClient, emotion string, confidence float64) {
	t.Helper()
	err := client.StoreClassification(&models.Classification{
		Timestamp:     time.Now(),
		Emotion:       emotion,
		Confidence:    confidence,
		Probabilities: json.RawMessage(`{"happy":0.5}`),
	})
	if err != nil {
		t.Fatalf("StoreClassification failed: %v", err)
	}
}

func TestStoreAndGetAllClassifications(t *testing.T) {
	t.Parallel()

	client := testClient(t)
	storeSample(t, client, "happy", 0.9)
	storeSample(t, client, "sad", 0.7)
	storeSample(t, client, "happy", 0.8)

	all, err := client.GetAllClassifications()
	if err != nil {
		t.Fatalf("GetAllClassifications failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d classifications, want 3", len(all))
	}
	for _, c := range all {
		if c.ID == 0 {
			t.Error("classification missing row id")
		}
		if len(c.Probabilities) == 0 {
			t.Error("probabilities not round-tripped")
		}
	}
}

func TestGetRecentClassificationsHonorsLimit(t *testing.T) {
	t.Parallel()

	client := testClient(t)
	for i := 0; i < 5; i++ {
		storeSample(t, client, "neutral", 0.6)
	}

	recent, err := client.GetRecentClassifications(2)
	if err != nil {
		t.Fatalf("GetRecentClassifications failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("got %d classifications, want 2", len(recent))
	}
}

func TestGetClassificationsByEmotion(t *testing.T) {
	t.Parallel()

	client := testClient(t)
	storeSample(t, client, "angry", 0.9)
	storeSample(t, client, "happy", 0.8)
	storeSample(t, client, "angry", 0.7)

	angry, err := client.GetClassificationsByEmotion("angry")
	if err != nil {
		t.Fatalf("GetClassificationsByEmotion failed: %v", err)
	}
	if len(angry) != 2 {
		t.Fatalf("got %d angry classifications, want 2", len(angry))
	}
	for _, c := range angry {
		if c.Emotion != "angry" {
			t.Errorf("filter returned emotion %q", c.Emotion)
		}
	}

	none, err := client.GetClassificationsByEmotion("surprised")
	if err != nil {
		t.Fatalf("GetClassificationsByEmotion failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("got %d surprised classifications, want 0", len(none))
	}
}

func TestEmotionCounts(t *testing.T) {
	t.Parallel()

	client := testClient(t)
	storeSample(t, client, "happy", 0.9)
	storeSample(t, client, "happy", 0.8)
	storeSample(t, client, "sad", 0.7)

	counts, err := client.EmotionCounts()
	if err != nil {
		t.Fatalf("EmotionCounts failed: %v", err)
	}
	if counts["happy"] != 2 || counts["sad"] != 1 {
		t.Errorf("unexpected counts %v", counts)
	}
}
