package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"bookline/agent/internal/api"
	"bookline/agent/internal/calendar"
	"bookline/agent/internal/catalog"
	"bookline/agent/internal/chatws"
	"bookline/agent/internal/classify"
	"bookline/agent/internal/config"
	"bookline/agent/internal/dialog"
	"bookline/agent/internal/events"
	"bookline/agent/internal/recovery"
	"bookline/agent/internal/routing"
	"bookline/agent/internal/sessions"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()

	messages, err := catalog.Load()
	if err != nil {
		log.Fatalf("message catalog: %v", err)
	}
	faq, err := catalog.LoadFAQ(cfg.FAQ.MatchThreshold)
	if err != nil {
		log.Fatalf("faq catalog: %v", err)
	}

	durable, err := sessions.OpenSQL(cfg.Session.DBPath)
	if err != nil {
		log.Fatalf("session store: %v", err)
	}
	defer durable.Close()
	store := sessions.NewHybrid(durable)
	locker := sessions.NewLocker(time.Duration(cfg.Session.LockTimeoutMs) * time.Millisecond)

	table, err := routing.LoadTable(cfg.Routing.TablePath, cfg.Routing.DefaultTenant)
	if err != nil {
		log.Fatalf("routing: %v", err)
	}

	gateway := calendar.NewHTTPGateway(cfg.Calendar.BaseURL, cfg.Calendar.APIKey,
		time.Duration(cfg.Calendar.TimeoutSec)*time.Second)

	ev := events.NewStore()
	engine := dialog.NewEngine(
		store, locker, gateway, messages, faq,
		classify.New(dialog.ClassifierConfig(cfg)),
		recovery.New(dialog.RecoveryConfig(cfg)),
		ev,
		dialog.OptionsFromConfig(cfg),
	)

	h := api.NewHandlers(engine, table, ev)
	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(h))
	// WS chat route
	chat := chatws.NewServer(engine, table, chatws.NewRegistry())
	mux.HandleFunc("/ws/chat", chat.HandleChatWS)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Printf("shutdown signal received; stopping server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	log.Printf("server starting on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		os.Exit(1)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
