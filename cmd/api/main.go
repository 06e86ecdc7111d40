package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dipdive.org/internal/auth"
	"dipdive.org/internal/httpapi"
	"dipdive.org/internal/obs"
	"dipdive.org/internal/rbac"
	"dipdive.org/internal/store/pg"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("DIPDIVE_COMMIT"))

	dsn := os.Getenv("DIPDIVE_PG_DSN")
	if dsn == "" {
		log.Fatal("DIPDIVE_PG_DSN is required")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	tokens, err := auth.IssuerFromEnv()
	if err != nil {
		log.Fatalf("token issuer: %v", err)
	}

	svc, err := rbac.NewService(store)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}
	resolver, err := rbac.NewResolver(store)
	if err != nil {
		log.Fatalf("rbac resolver: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, svc, resolver, tokens)

	addr := os.Getenv("DIPDIVE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	handler := httpapi.RequestID(api.Handler())
	handler = httpapi.LoggingJSON(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.CORS(handler)
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.RateLimit(handler, 50, 25)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting dipdive-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = store.Close()
	log.Println("Stopped")
}
