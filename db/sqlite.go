package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"emotion-recognition/models"
	"emotion-recognition/utils"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %s", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000" // 5 seconds
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %s", err)
	}

	err = createTables(db)
	if err != nil {
		return nil, fmt.Errorf("error creating tables: %s", err)
	}

	return &SQLiteClient{db: db}, nil
}

// createTables creates the required tables if they don't exist
func createTables(db *sql.DB) error {
	createClassificationsTable := `
    CREATE TABLE IF NOT EXISTS classifications (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
        emotion TEXT NOT NULL,
        confidence REAL NOT NULL DEFAULT 0,
        fallback INTEGER NOT NULL DEFAULT 0,
        latency_ms REAL NOT NULL DEFAULT 0,
        probabilities TEXT NOT NULL,
        recording_path TEXT
    );
    CREATE INDEX IF NOT EXISTS idx_classifications_timestamp ON classifications(timestamp);
    CREATE INDEX IF NOT EXISTS idx_classifications_emotion ON classifications(emotion);
    `

	_, err := db.Exec(createClassificationsTable)
	if err != nil {
		return fmt.Errorf("error creating classifications table: %s", err)
	}

	return nil
}

func (db *SQLiteClient) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

// StoreClassification stores a classification in the database
func (db *SQLiteClient) StoreClassification(c *models.Classification) error {
	probabilitiesJSON, err := json.Marshal(c.Probabilities)
	if err != nil {
		return fmt.Errorf("error marshaling probabilities: %s", err)
	}

	fallbackInt := 0
	if c.Fallback {
		fallbackInt = 1
	}

	_, err = db.db.Exec(`
		INSERT INTO classifications (
			timestamp, emotion, confidence, fallback, latency_ms,
			probabilities, recording_path
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.Timestamp,
		c.Emotion,
		c.Confidence,
		fallbackInt,
		c.LatencyMs,
		string(probabilitiesJSON),
		c.RecordingPath,
	)
	if err != nil {
		return fmt.Errorf("error storing classification: %s", err)
	}
	return nil
}

// GetAllClassifications retrieves all classifications from the database
func (db *SQLiteClient) GetAllClassifications() ([]models.Classification, error) {
	rows, err := db.db.Query(`
		SELECT id, timestamp, emotion, confidence, fallback, latency_ms,
		       probabilities, recording_path
		FROM classifications
		ORDER BY timestamp DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("error querying classifications: %s", err)
	}
	defer rows.Close()

	return scanClassifications(rows)
}

// GetRecentClassifications retrieves the newest classifications up to limit
func (db *SQLiteClient) GetRecentClassifications(limit int) ([]models.Classification, error) {
	rows, err := db.db.Query(`
		SELECT id, timestamp, emotion, confidence, fallback, latency_ms,
		       probabilities, recording_path
		FROM classifications
		ORDER BY timestamp DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying classifications: %s", err)
	}
	defer rows.Close()

	return scanClassifications(rows)
}

// GetClassificationsByEmotion retrieves classifications for one label
func (db *SQLiteClient) GetClassificationsByEmotion(emotion string) ([]models.Classification, error) {
	rows, err := db.db.Query(`
		SELECT id, timestamp, emotion, confidence, fallback, latency_ms,
		       probabilities, recording_path
		FROM classifications
		WHERE emotion = ?
		ORDER BY timestamp DESC
	`, emotion)
	if err != nil {
		return nil, fmt.Errorf("error querying classifications by emotion: %s", err)
	}
	defer rows.Close()

	return scanClassifications(rows)
}

// EmotionCounts returns how many stored classifications carry each label
func (db *SQLiteClient) EmotionCounts() (map[string]int, error) {
	rows, err := db.db.Query(`SELECT emotion, COUNT(*) FROM classifications GROUP BY emotion`)
	if err != nil {
		return nil, fmt.Errorf("error counting classifications: %s", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var emotion string
		var count int
		if err := rows.Scan(&emotion, &count); err != nil {
			return nil, fmt.Errorf("error scanning count row: %s", err)
		}
		counts[emotion] = count
	}
	return counts, nil
}

func scanClassifications(rows *sql.Rows) ([]models.Classification, error) {
	var classifications []models.Classification
	for rows.Next() {
		var c models.Classification
		var fallbackInt int
		var probabilitiesJSON string
		var recordingPath *string

		err := rows.Scan(
			&c.ID,
			&c.Timestamp,
			&c.Emotion,
			&c.Confidence,
			&fallbackInt,
			&c.LatencyMs,
			&probabilitiesJSON,
			&recordingPath,
		)
		if err != nil {
			return nil, fmt.Errorf("error scanning classification: %s", err)
		}

		c.Fallback = fallbackInt == 1
		c.Probabilities = json.RawMessage(probabilitiesJSON)
		if recordingPath != nil {
			c.RecordingPath = *recordingPath
		}

		classifications = append(classifications, c)
	}

	return classifications, nil
}
