package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"driftboard-relay-server/bus"
	"driftboard-relay-server/config"
	"driftboard-relay-server/hub"
	"driftboard-relay-server/metrics"
	"driftboard-relay-server/protocol"
	ws "driftboard-relay-server/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg := config.Load()
	setupLogger(cfg.LogLevel)

	relay := hub.New(hub.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatTimeout:  cfg.HeartbeatTimeout,
		SendTimeout:       cfg.SendTimeout,
		SendRetryDelay:    cfg.SendRetryDelay,
		SendMaxAttempts:   cfg.SendMaxAttempts,
		HistoryLimit:      cfg.HistoryLimit,
		StampSender:       cfg.StampSender,
	})
	handler := protocol.NewHandler(relay, protocol.Options{
		IdleTimeout: cfg.HeartbeatTimeout,
		SendTimeout: cfg.SendTimeout,
		MsgRate:     cfg.MsgRate,
		MsgBurst:    cfg.MsgBurst,
	})

	busCtx, stopBus := context.WithCancel(context.Background())
	defer stopBus()
	if cfg.RedisAddr != "" {
		rb, err := bus.New(busCtx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			slog.Error("redis connect error", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer rb.Close()

		relay.SetPublisher(func(roomID, senderID string, payload []byte) {
			ctx, cancel := context.WithTimeout(busCtx, cfg.SendTimeout)
			defer cancel()
			if err := rb.Publish(ctx, roomID, senderID, payload); err != nil {
				slog.Warn("bus publish failed", "room", roomID, "error", err)
			}
		})
		go rb.Subscribe(busCtx, func(m bus.Message) {
			relay.DeliverRemote(m.RoomID, m.SenderID, m.Payload)
		})
		slog.Info("relay bus connected", "addr", cfg.RedisAddr, "serverId", rb.ServerID())
	}

	relay.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(handler))
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/stats", statsHandler(relay))
	mux.Handle("/metrics", metrics.Handler())

	corsmw := cors.New(cors.Options{AllowedOrigins: cfg.AllowOrigins})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsmw.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("server shutting down")
	stopBus()
	relay.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func setupLogger(level string) {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func wsHandler(handler *protocol.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("upgrade error", "error", err)
			return
		}

		wsConn := ws.NewConn(uuid.New().String(), conn)
		events := handler.Accept(wsConn, r.URL.Query().Get("clientId"))
		wsConn.Start(events)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func statsHandler(relay *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, clients := relay.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"rooms": rooms, "clients": clients})
	}
}
