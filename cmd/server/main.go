package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rasoi-pos/api/internal/config"
	"github.com/rasoi-pos/api/internal/database"
	"github.com/rasoi-pos/api/internal/router"
	"github.com/rasoi-pos/api/internal/ws"
)

func main() {
	cfg := config.Load()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		// Container images without tzdata fall back to a fixed offset.
		log.Printf("load timezone %q: %v, using fixed IST offset", cfg.Timezone, err)
		loc = time.FixedZone("IST", 5*3600+30*60)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		cancel()
		log.Fatalf("create connection pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		cancel()
		log.Fatalf("ping database: %v", err)
	}
	cancel()
	log.Println("Connected to database")

	queries := database.New(pool)

	hub := ws.NewHub()
	go hub.Run()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router.New(queries, pool, hub, loc),
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("ERROR: shutdown: %v", err)
	}
	pool.Close()
}
