package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"plateful/config"
	httpapi "plateful/internal/api/http"
	"plateful/internal/auth"
	"plateful/internal/events"
	"plateful/internal/notify"
	"plateful/internal/service"
	"plateful/internal/store"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg := config.Load()

	db, connStr := config.MustInitPostgres()
	defer db.Close()

	st, err := store.NewPostgres(db, connStr, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init document store")
	}
	defer st.Close()

	rdb := config.MustInitRedis()
	defer rdb.Close()

	markers := notify.NewRedisMarkerCache(rdb, notify.DedupeWindow)
	transport := notify.NewExpoTransport(cfg.PushURL)
	dispatcher := notify.NewDispatcher(st, transport, markers, log)

	writer := config.NewKafkaWriter(cfg.OrderTopic)
	defer writer.Close()
	publisher := events.NewKafkaPublisher(writer)

	qr := service.PickupQRGenerator{BaseURL: cfg.QRBaseURL}
	orders := service.NewOrderService(st, dispatcher, publisher, qr, log)
	restaurants := service.NewRestaurantService(st, log)
	menu := service.NewMenuService(st, log)
	users := service.NewUserService(st, log)

	authSvc := auth.NewService(st, auth.NewRedisDenylist(rdb), cfg.JWTSecret, cfg.SessionTTL, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader := config.NewKafkaReader(cfg.OrderTopic, "plateful-notifications")
	defer reader.Close()
	consumer := events.NewConsumer(reader, dispatcher, log)
	go consumer.Start(ctx)

	handler := httpapi.NewHandler(authSvc, orders, restaurants, menu, users, log)
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("plateful api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
}
