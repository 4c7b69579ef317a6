package main

import (
	"context"
	"log"
	"time"

	"cloud.google.com/go/storage"
	"github.com/harukimz/ledgermart-backend/internal/config"
	"github.com/harukimz/ledgermart-backend/internal/db"
	"github.com/harukimz/ledgermart-backend/internal/escrow"
	"github.com/harukimz/ledgermart-backend/internal/ledger"
	"github.com/harukimz/ledgermart-backend/internal/logger"
	"github.com/harukimz/ledgermart-backend/internal/model"
	"github.com/harukimz/ledgermart-backend/internal/redisx"
	"github.com/harukimz/ledgermart-backend/internal/repository"
	"github.com/harukimz/ledgermart-backend/internal/server"
	"github.com/harukimz/ledgermart-backend/internal/service"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logg := logger.New("ledgermart-api", cfg.LogLevel)

	ctx := context.Background()

	conn, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	if err := conn.AutoMigrate(
		&model.Product{},
		&model.Purchase{},
		&model.Rating{},
		&model.EscrowShadow{},
	); err != nil {
		log.Fatalf("auto migrate error: %v", err)
	}

	rdb := redisx.New(cfg.RedisAddr)
	lock := redisx.NewFlowLock(rdb)

	gateway := ledger.NewGateway(ledger.Config{
		RPCURL:       cfg.LedgerRPCURL,
		PollInterval: cfg.PollInterval,
		PollBudget:   cfg.PollBudget,
		Logger:       logg,
	})
	signers := ledger.NewRemoteSignerFactory(cfg.SigningServiceURL, nil)
	platformSigner := signers.For(cfg.PlatformPrincipal)

	purchaseRepo := repository.NewPurchaseRepository(conn)
	escrowRepo := repository.NewEscrowRepository(conn)

	scheduler := escrow.NewScheduler(escrow.Config{
		Gateway:   gateway,
		Signer:    platformSigner,
		Account:   cfg.PlatformPrincipal,
		Purchases: purchaseRepo,
		Backoff:   cfg.SchedulerBackoff,
		Logger:    logg,
	})
	// Escrows created before the last restart still need their deferred
	// finish; refill the queue from the shadow table.
	shadows, err := escrowRepo.ListAll(ctx)
	if err != nil {
		log.Fatalf("escrow shadow reload error: %v", err)
	}
	for i := range shadows {
		rec := shadows[i]
		notBefore := rec.FinishAfter
		if now := time.Now(); notBefore.Before(now) {
			notBefore = now
		}
		scheduler.ScheduleFinish(&rec, notBefore)
	}
	go func() {
		if err := scheduler.Run(ctx); err != nil && err != context.Canceled {
			logg.Error().Err(err).Msg("escrow scheduler exited")
		}
	}()

	storageClient, err := storage.NewClient(ctx, option.WithScopes(storage.ScopeReadOnly))
	if err != nil {
		log.Fatalf("storage client error: %v", err)
	}
	access := service.NewGCSAccessService(storageClient, cfg.ContentBucket, cfg.AccessURLTTL)

	srv := server.New(server.Params{
		DB:             conn,
		Cfg:            cfg,
		Gateway:        gateway,
		Signers:        signers,
		PlatformSigner: platformSigner,
		Scheduler:      scheduler,
		Lock:           lock,
		Access:         access,
		Log:            logg,
	})

	addr := ":" + cfg.Port
	logg.Info().Str("addr", addr).Int("pending_escrows", len(shadows)).Msg("starting server")
	if err := srv.Start(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
