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
	"go.uber.org/zap"

	"github.com/tiercommerce/orders/internal/config"
	"github.com/tiercommerce/orders/internal/gateway"
	"github.com/tiercommerce/orders/internal/httpx"
	"github.com/tiercommerce/orders/internal/inventory"
	"github.com/tiercommerce/orders/internal/logger"
	"github.com/tiercommerce/orders/internal/orders"
	"github.com/tiercommerce/orders/internal/postgres"
	"github.com/tiercommerce/orders/internal/redisx"
	"github.com/tiercommerce/orders/internal/tier"
)

// The seller tier: customer orders are forwarded to the distributor at
// creation time; the distributor's acceptance comes back as a callback.
func main() {
	_ = godotenv.Load()
	cfg := config.Load("SELLER", ":8081")

	zaplog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zaplog.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		zaplog.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		zaplog.Fatal("db migrate", zap.Error(err))
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	store := &orders.Repo{DB: db}
	ledger := &inventory.Ledger{DB: db}

	var fwd tier.Forwarder
	if cfg.UpstreamURL != "" {
		gw := gateway.New(cfg.UpstreamURL, cfg.HTTPTimeout,
			gateway.WithServiceAccount(cfg.UpstreamUser, cfg.UpstreamPass))
		fwd = &gateway.OrderForwarder{Client: gw}
	}

	svc := tier.NewService(tier.Config{
		Tier:      cfg.Tier,
		LocalType: orders.TypeStandard,
		PeerType:  orders.TypeStandard,
	}, store, ledger, fwd, nil, &redisx.Dedup{C: rdb, Tier: cfg.Tier}, zaplog)

	router := httpx.NewRouter(zaplog)
	h := &httpx.TierHandler{
		Service:   svc,
		Redis:     rdb,
		JWTSecret: cfg.JWTSecret,
		APIKey:    cfg.APIKey,
		Users:     cfg.AuthUsers,
		Log:       zaplog,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		zaplog.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zaplog.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	zaplog.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
}
