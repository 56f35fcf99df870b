package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/rohan/tablebook/config"
	"github.com/rohan/tablebook/internal/broker"
	"github.com/rohan/tablebook/internal/events"
	"github.com/rohan/tablebook/internal/repository"
	"github.com/rohan/tablebook/internal/service"
	"github.com/rohan/tablebook/pkg/cache"
	"github.com/rohan/tablebook/pkg/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Infrastructure ──────────────────────────────────
	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("[main] postgres: %v", err)
	}
	defer pool.Close()
	log.Printf("[main] connected to postgres at %s:%d", cfg.Postgres.Host, cfg.Postgres.Port)

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("[main] redis: %v", err)
	}
	defer redisClient.Close()
	log.Printf("[main] connected to redis at %s", cfg.Redis.Addr())

	publisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers)
	if err != nil {
		log.Fatalf("[main] kafka producer: %v", err)
	}
	defer publisher.Close()
	log.Printf("[main] kafka producer ready, brokers %v", cfg.Kafka.Brokers)

	// ── Repositories and caches ─────────────────────────
	reservations := repository.NewReservationRepository(pool)
	quotas := repository.NewQuotaRepository(pool)
	menuItems := repository.NewMenuItemRepository(pool)
	tableStatus := cache.NewTableStatusCache(redisClient)

	// ── Correlation brokers ─────────────────────────────
	validatorBrokers := service.NewValidatorBrokers()
	tableFinder := broker.New[events.FindAvailableTableResponse]("table-find")

	// ── Services ────────────────────────────────────────
	validator := service.NewRestaurantValidatorService(publisher, validatorBrokers, cfg.Restaurant.ValidationTimeout)
	tables := service.NewTableAssignerService(
		publisher, tableFinder, tableStatus, reservations,
		cfg.Restaurant.URL, cfg.Restaurant.TableFindTimeout,
	)
	coordinator := service.NewReservationService(
		reservations, quotas, menuItems, validator, tables, publisher, cfg.Reservation,
	)

	reconciler := service.NewReconciler(reservations, quotas, tables, publisher, cfg.Scheduling)
	if err := reconciler.Start(ctx); err != nil {
		log.Fatalf("[main] reconciler: %v", err)
	}
	defer reconciler.Stop()

	// ── Consumers ───────────────────────────────────────
	type subscription struct {
		topic   string
		group   string
		handler events.Handler
	}
	subs := []subscription{
		{events.TopicTableFindResponse, events.GroupTableAvailability,
			service.NewResponseHandler(tableFinder,
				func(r events.FindAvailableTableResponse) string { return r.CorrelationID })},
		{events.TopicRestaurantValidationResp, events.GroupRestaurantValidation,
			service.NewResponseHandler(validatorBrokers.Validation,
				func(r events.RestaurantValidationResponse) string { return r.CorrelationID })},
		{events.TopicTimeValidationResponse, events.GroupTimeValidation,
			service.NewResponseHandler(validatorBrokers.Time,
				func(r events.ReservationTimeValidationResponse) string { return r.CorrelationID })},
		{events.TopicRestaurantOwnershipResp, events.GroupRestaurantOwnership,
			service.NewResponseHandler(validatorBrokers.Ownership,
				func(r events.RestaurantOwnershipResponse) string { return r.CorrelationID })},
		{events.TopicRestaurantSearchResponse, events.GroupRestaurantSearch,
			service.NewResponseHandler(validatorBrokers.Search,
				func(r events.RestaurantSearchResponse) string { return r.CorrelationID })},
		{events.TopicMenuItemEvents, events.GroupMenuItem, service.NewMenuItemHandler(menuItems)},
		{events.TopicTableStatus, events.GroupTableStatus, service.NewTableStatusHandler(tableStatus)},
		{events.TopicUserEvents, events.GroupUser, service.NewUserAuditHandler()},
	}

	var wg sync.WaitGroup
	var consumers []*events.GroupConsumer
	for _, sub := range subs {
		consumer, err := events.NewGroupConsumer(cfg.Kafka.Brokers, sub.topic, cfg.Kafka.GroupBase+sub.group, sub.handler)
		if err != nil {
			log.Fatalf("[main] consumer for %s: %v", sub.topic, err)
		}
		consumers = append(consumers, consumer)
		wg.Add(1)
		go func(c *events.GroupConsumer) {
			defer wg.Done()
			c.Run(ctx)
		}(consumer)
	}

	// ── Operational HTTP endpoint ───────────────────────
	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{"postgres": "ok", "redis": "ok", "kafka": "ok"}
		healthy := true
		if err := db.HealthCheck(r.Context(), pool); err != nil {
			checks["postgres"] = err.Error()
			healthy = false
		}
		if err := cache.HealthCheck(r.Context(), redisClient); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
		if err := publisher.Ping(r.Context()); err != nil {
			checks["kafka"] = err.Error()
			healthy = false
		}
		w.Header().Set("Content-Type", "application/json")
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]any{"healthy": healthy, "checks": checks})
	}).Methods(http.MethodGet)

	// Read-only lookup for operators; the public API in front of this
	// service owns the full reservation surface.
	router.HandleFunc("/reservations/{id}", func(w http.ResponseWriter, r *http.Request) {
		res, err := coordinator.GetByID(r.Context(), mux.Vars(r)["id"])
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			var nf *service.NotFoundError
			if errors.As(err, &nf) {
				w.WriteHeader(http.StatusNotFound)
			} else {
				w.WriteHeader(http.StatusInternalServerError)
			}
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		json.NewEncoder(w).Encode(res)
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         cfg.Server.ServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		log.Printf("[main] http listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] http server: %v", err)
		}
	}()

	// ── Shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("[main] shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] http shutdown: %v", err)
	}

	cancel()
	for _, c := range consumers {
		c.Close()
	}
	wg.Wait()
	log.Printf("[main] stopped")
}
