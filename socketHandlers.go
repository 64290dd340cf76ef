package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"path/filepath"
	"time"

	"emotion-recognition/db"
	"emotion-recognition/emotion"
	"emotion-recognition/infer"
	"emotion-recognition/models"
	"emotion-recognition/utils"
	"emotion-recognition/wav"

	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"
)

type socketController struct {
	service           *infer.Service
	store             *db.SQLiteClient
	persistRecordings bool
}

func newSocketController(service *infer.Service, store *db.SQLiteClient, persist bool) *socketController {
	return &socketController{service: service, store: store, persistRecordings: persist}
}

type modelInfo struct {
	Ready      bool     `json:"ready"`
	Emotions   []string `json:"emotions"`
	SampleRate int      `json:"sampleRate"`
	Duration   float64  `json:"duration"`
}

func (c *socketController) emitModelInfo(socket socketio.Conn) {
	cfg := c.service.Config()
	socket.Emit("modelInfo", modelInfo{
		Ready:      c.service.Ready(),
		Emotions:   emotion.Emotions,
		SampleRate: cfg.SampleRate,
		Duration:   cfg.Duration(),
	})
}

func (c *socketController) handleRequestModelInfo(socket socketio.Conn) {
	c.emitModelInfo(socket)
}

func (c *socketController) handleNewRecording(socket socketio.Conn, recordData string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	if recordData == "" {
		logger.ErrorContext(ctx, "no data received in newRecording event")
		socket.Emit("analysisError", map[string]string{"message": "no audio data received"})
		return
	}

	var recData models.RecordData
	if err := json.Unmarshal([]byte(recordData), &recData); err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to parse record payload", slog.Any("error", err))
		socket.Emit("analysisError", map[string]string{"message": "invalid audio payload"})
		return
	}

	logger.InfoContext(ctx, "received recording",
		slog.String("socketID", socket.ID()),
		slog.Int("sampleRate", recData.SampleRate),
		slog.Int("channels", recData.Channels),
		slog.Float64("duration", recData.Duration),
	)

	samples, recordingPath, err := decodeRecording(recData, c.service.Config().SampleRate, c.persistRecordings)
	if err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to decode recording", slog.Any("error", err))
		socket.Emit("analysisError", map[string]string{"message": "unable to decode audio"})
		return
	}

	result := c.service.ClassifySamples(ctx, samples)

	logger.InfoContext(ctx, "classification complete",
		slog.String("socketID", socket.ID()),
		slog.String("emotion", result.Emotion),
		slog.Float64("confidence", result.Confidence),
		slog.Bool("fallback", result.Fallback),
		slog.Float64("latency_ms", result.LatencyMs),
	)

	if c.store != nil {
		storeResult(c.store, result, recordingPath)
	}

	socket.Emit("classification", result)
}

// decodeRecording turns the base64 PCM payload from the frontend into mono
// samples at the target rate, optionally persisting the clip as a WAV file.
func decodeRecording(recData models.RecordData, targetRate int, persist bool) ([]float64, string, error) {
	if recData.Audio == "" {
		return nil, "", fmt.Errorf("empty audio payload")
	}
	raw, err := base64.StdEncoding.DecodeString(recData.Audio)
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode base64 audio: %w", err)
	}

	samples, err := wav.WavBytesToSamples(raw)
	if err != nil {
		return nil, "", err
	}
	channels := recData.Channels
	if channels <= 0 {
		channels = 1
	}
	samples = wav.DownmixToMono(samples, channels)

	var recordingPath string
	if persist {
		if err := utils.CreateFolder("recordings"); err == nil {
			path := filepath.Join("recordings", utils.GenerateUniqueID()+".wav")
			if err := wav.WriteWavSamples(path, samples, recData.SampleRate); err == nil {
				recordingPath = path
			} else {
				log.Printf("failed to persist recording: %v\n", err)
			}
		}
	}

	if recData.SampleRate > 0 && recData.SampleRate != targetRate {
		samples, err = wav.Resample(samples, recData.SampleRate, targetRate)
		if err != nil {
			return nil, recordingPath, err
		}
	}
	return samples, recordingPath, nil
}

func storeResult(store *db.SQLiteClient, result infer.Result, recordingPath string) {
	probabilities, err := json.Marshal(result.Probabilities)
	if err != nil {
		probabilities = []byte("{}")
	}
	classification := &models.Classification{
		Timestamp:     time.Now(),
		Emotion:       result.Emotion,
		Confidence:    result.Confidence,
		Fallback:      result.Fallback,
		LatencyMs:     result.LatencyMs,
		Probabilities: json.RawMessage(probabilities),
		RecordingPath: recordingPath,
	}
	if err := store.StoreClassification(classification); err != nil {
		log.Printf("failed to save classification: %v\n", err)
	}
}
