package router

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rasoi-pos/api/internal/database"
	"github.com/rasoi-pos/api/internal/handler"
	"github.com/rasoi-pos/api/internal/service"
	"github.com/rasoi-pos/api/internal/ws"
)

// New creates a Chi router with all application routes wired up.
func New(queries *database.Queries, pool *pgxpool.Pool, hub *ws.Hub, loc *time.Location) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// WebSocket live event feed for terminals
	r.Get("/ws/tables", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, w, r)
	})

	// Transactional services share the pool; per-tx stores come from the
	// factory.
	lineService := service.NewLineService(pool, func(db database.DBTX) service.LineStore {
		return database.New(db)
	})
	billingService := service.NewBillingService(pool, func(db database.DBTX) service.BillStore {
		return database.New(db)
	}, loc)

	r.Route("/api", func(r chi.Router) {
		// Menu catalog
		itemHandler := handler.NewItemHandler(queries)
		r.Route("/items", itemHandler.RegisterRoutes)

		// Tables and their running orders
		tableHandler := handler.NewTableHandler(queries, billingService, hub, loc)
		r.Route("/tables", func(r chi.Router) {
			tableHandler.RegisterRoutes(r)

			tableItemHandler := handler.NewTableItemHandler(queries, lineService)
			r.Route("/{id}/items", tableItemHandler.RegisterRoutes)
		})

		// Bills
		billHandler := handler.NewBillHandler(queries, billingService, hub, loc)
		r.Route("/bills", billHandler.RegisterRoutes)
	})

	log.Println("Router initialized with all handlers")
	return r
}
