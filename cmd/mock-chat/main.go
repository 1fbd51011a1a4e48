package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	env "github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/withdrawal-settlement/internal/logging"
)

type mockConfig struct {
	Port   int    `env:"MOCK_CHAT_PORT" envDefault:"8081"`
	AppEnv string `env:"APP_ENV" envDefault:"development"`
}

type chatMessage struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	AccountID string `json:"account_id"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
}

// mock-chat stands in for the support chat service: it accepts the
// webhook posts and logs the message that would be shown to the holder.
func main() {
	cfg, err := env.ParseAs[mockConfig]()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Init("mock-chat", "info", cfg.AppEnv)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
			slog.Error("failed to write health response", "error", err)
		}
	})
	mux.HandleFunc("POST /webhooks/chat", func(w http.ResponseWriter, r *http.Request) {
		var msg chatMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			slog.Warn("malformed chat webhook", "error", err)
			http.Error(w, "malformed body", http.StatusBadRequest)
			return
		}
		slog.Info("chat message",
			"event_id", msg.EventID,
			"event_type", msg.EventType,
			"account_id", msg.AccountID,
			"sender", msg.Sender,
			"message", msg.Message,
		)
		w.WriteHeader(http.StatusAccepted)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("mock chat started", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
