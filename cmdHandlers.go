package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"emotion-recognition/db"
	"emotion-recognition/infer"
	"emotion-recognition/models"
	"emotion-recognition/utils"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"
)

type apiError struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

func newAudioClassificationHandler(service *infer.Service, store *db.SQLiteClient, persistRecordings bool) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var recData models.RecordData
		if err := json.NewDecoder(r.Body).Decode(&recData); err != nil {
			logger.ErrorContext(ctx, "failed to parse request body", slog.Any("error", err))
			writeJSONError(w, http.StatusBadRequest, "invalid request payload")
			return
		}

		if recData.Audio == "" {
			logger.ErrorContext(ctx, "no audio data received")
			writeJSONError(w, http.StatusBadRequest, "no audio data received")
			return
		}

		samples, recordingPath, err := decodeRecording(recData, service.Config().SampleRate, persistRecordings)
		if err != nil {
			err := xerrors.New(err)
			logger.ErrorContext(ctx, "failed to decode recording", slog.Any("error", err))
			writeJSONError(w, http.StatusBadRequest, "unable to decode audio")
			return
		}

		result := service.ClassifySamples(ctx, samples)

		logger.InfoContext(ctx, "classification complete",
			slog.String("emotion", result.Emotion),
			slog.Float64("confidence", result.Confidence),
			slog.Bool("fallback", result.Fallback),
			slog.Float64("latency_ms", result.LatencyMs),
		)

		if store != nil {
			storeResult(store, result, recordingPath)
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func newClassificationsHandler(store *db.SQLiteClient) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if store == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "history store unavailable")
			return
		}

		var classifications []models.Classification
		var err error
		switch {
		case r.URL.Query().Get("emotion") != "":
			classifications, err = store.GetClassificationsByEmotion(r.URL.Query().Get("emotion"))
		case r.URL.Query().Get("limit") == "all":
			classifications, err = store.GetAllClassifications()
		default:
			limit := 100
			if v := r.URL.Query().Get("limit"); v != "" {
				if parsed, parseErr := strconv.Atoi(v); parseErr == nil && parsed > 0 {
					limit = parsed
				}
			}
			classifications, err = store.GetRecentClassifications(limit)
		}
		if err != nil {
			logger.ErrorContext(ctx, "failed to load classifications", slog.Any("error", err))
			writeJSONError(w, http.StatusInternalServerError, "failed to load classifications")
			return
		}

		writeJSON(w, http.StatusOK, classifications)
	}
}

func newStatsHandler(store *db.SQLiteClient) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.Background()

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		if store == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "history store unavailable")
			return
		}

		counts, err := store.EmotionCounts()
		if err != nil {
			logger.ErrorContext(ctx, "failed to count classifications", slog.Any("error", err))
			writeJSONError(w, http.StatusInternalServerError, "failed to count classifications")
			return
		}

		writeJSON(w, http.StatusOK, counts)
	}
}

func serve(protocol, port string) {
	protocol = strings.ToLower(protocol)
	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	modelPath := utils.GetEnv("EMOTION_MODEL_PATH", "outputs/best_model.ckpt")
	metadataPath := utils.GetEnv("EMOTION_METADATA_PATH", "outputs/metadata.json")

	seed := time.Now().UnixNano()
	if seedStr := utils.GetEnv("EMOTION_FALLBACK_SEED", ""); seedStr != "" {
		parsed, err := strconv.ParseInt(seedStr, 10, 64)
		if err != nil {
			log.Fatalf("invalid EMOTION_FALLBACK_SEED value '%s': %v", seedStr, err)
		}
		seed = parsed
	}

	service, err := infer.NewService(modelPath, metadataPath, seed)
	if err != nil {
		log.Fatalf("failed to build classification service: %v", err)
	}
	if !service.Ready() {
		log.Printf("WARNING: model not loaded from %s, serving random fallback predictions\n", modelPath)
	}

	var store *db.SQLiteClient
	dbPath := utils.GetEnv("EMOTION_DB_PATH", "db/classifications.db")
	if !strings.EqualFold(dbPath, "disabled") {
		store, err = db.NewSQLiteClient(dbPath)
		if err != nil {
			log.Fatalf("failed to open classification store: %v", err)
		}
		defer store.Close()
	}

	persistRecordings := strings.EqualFold(utils.GetEnv("EMOTION_PERSIST_RECORDINGS", "false"), "true")
	if persistRecordings {
		if err := utils.CreateFolder("recordings"); err != nil {
			log.Fatalf("failed to create recordings directory: %v", err)
		}
	}
	controller := newSocketController(service, store, persistRecordings)

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		connURL := socket.URL()
		log.Printf("CONNECTED: %s, transport: %s, remote addr: %s\n", socket.ID(), connURL.String(), socket.RemoteAddr())
		controller.emitModelInfo(socket)
		return nil
	})

	server.OnEvent("/", "requestModelInfo", func(socket socketio.Conn) {
		controller.handleRequestModelInfo(socket)
	})

	server.OnEvent("/", "newRecording", func(socket socketio.Conn, msg string) {
		// Run handler in goroutine to prevent blocking, with panic recovery
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in handleNewRecording for socket %s: %v\n", socket.ID(), r)
					socket.Emit("analysisError", map[string]string{"message": "internal server error during processing"})
				}
			}()
			controller.handleNewRecording(socket, msg)
		}()
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	serveHTTPS := protocol == "https"

	classificationHandler := newAudioClassificationHandler(service, store, persistRecordings)
	classificationsHandler := newClassificationsHandler(store)
	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	mux.HandleFunc("/api/audio/classify", classificationHandler)
	mux.HandleFunc("/api/classifications", classificationsHandler)
	mux.HandleFunc("/api/classifications/stats", newStatsHandler(store))
	mux.Handle("/", http.FileServer(http.Dir("static")))

	serveHTTP(server, serveHTTPS, port, mux)
}

func serveHTTP(socketServer *socketio.Server, serveHTTPS bool, port string, handler http.Handler) {
	if handler == nil {
		handler = socketServer
	}
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		cert_key := utils.GetEnv("CERT_KEY", "")
		cert_file := utils.GetEnv("CERT_FILE", "")
		if cert_key == "" || cert_file == "" {
			log.Fatal("Missing cert")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(cert_file, cert_key); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
