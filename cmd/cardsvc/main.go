package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/viand-services/configs"
	"github.com/avvvet/viand-services/internal/auth"
	"github.com/avvvet/viand-services/internal/cache"
	"github.com/avvvet/viand-services/internal/cardsvc/broker"
	cardconfig "github.com/avvvet/viand-services/internal/cardsvc/config"
	"github.com/avvvet/viand-services/internal/cardsvc/handlers"
	"github.com/avvvet/viand-services/internal/cardsvc/service"
	"github.com/avvvet/viand-services/internal/cardsvc/store"
	"github.com/avvvet/viand-services/internal/cardsvc/ws"
	"github.com/avvvet/viand-services/internal/comm"
	"github.com/avvvet/viand-services/internal/db"
	natsconn "github.com/avvvet/viand-services/internal/nats"
)

const SERVICE_NAME = "card"

var instanceId string

func init() {
	config.LoadEnv(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service")
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
}

func main() {
	cfg, err := cardconfig.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// mongo connection
	database, err := db.ConnectToDB(context.Background(), cfg.MongoURI)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer func() {
		if err := db.Disconnect(context.Background(), database); err != nil {
			log.Errorf("mongo disconnect: %v", err)
		}
	}()
	log.Printf("mongo connection established successfully, database %s", database.Name())

	cardStore := store.NewCardStore(database)
	userStore := store.NewUserStore(database)
	if err := cardStore.EnsureIndexes(context.Background()); err != nil {
		log.Fatalf("Failed to create card indexes: %v", err)
	}
	if err := userStore.EnsureIndexes(context.Background()); err != nil {
		log.Fatalf("Failed to create user indexes: %v", err)
	}

	tokenAuth := auth.New(cfg.JWTSecret, cfg.TokenTTL)
	s := ws.NewWs()

	// NATS is optional; without it events reach only sockets held by this instance
	var natsConn *nats.Conn
	var sub *nats.Subscription
	if cfg.NatsURL != "" {
		n, err := natsconn.Connect(cfg.NatsURL, cfg.NatsToken, SERVICE_NAME+"_service_"+instanceId)
		if err != nil {
			log.Fatalf("Error: unable to connect to NATS server %v", err)
		}
		defer n.Close()
		natsConn = n.Conn
		log.Printf("NATS connection established successfully %s", n.Url)
	}

	b := broker.NewBroker(natsConn, instanceId, s.Deliver)
	if natsConn != nil {
		sub, err = b.Subscribe(comm.CardEventsSubject)
		if err != nil {
			log.Fatalf("Error: unable to subscribe to %s %v", comm.CardEventsSubject, err)
		}
	}

	cardOpts := []service.CardOption{
		service.WithPublisher(b),
		service.WithScopedRead(cfg.ScopedRead),
	}
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(context.Background(), cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rc.Close()
		cardOpts = append(cardOpts, service.WithCache(rc, cfg.CacheTTL))
		log.Printf("redis card cache enabled at %s", cfg.RedisAddr)
	}

	cardService := service.NewCardService(cardStore, cardOpts...)
	userService := service.NewUserService(userStore, tokenAuth)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(config.CORSHandler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(cfg.RateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(tokenAuth, cardService, userService, s, cfg.Port)
	h.SetRoutes(r)

	// Create server with timeout settings. No WriteTimeout: it would cut
	// long lived feed sockets; REST routes carry their own timeout.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	if sub != nil {
		_ = sub.Unsubscribe()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
		return
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
