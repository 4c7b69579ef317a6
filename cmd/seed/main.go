package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/harukimz/ledgermart-backend/internal/config"
	"github.com/harukimz/ledgermart-backend/internal/db"
	"github.com/harukimz/ledgermart-backend/internal/model"
	"github.com/harukimz/ledgermart-backend/internal/repository"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
}

func run() error {
	ctx := context.Background()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	if err := conn.AutoMigrate(&model.Product{}, &model.Purchase{}, &model.Rating{}, &model.EscrowShadow{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	seller := os.Getenv("SEED_SELLER_PRINCIPAL")
	if seller == "" {
		return fmt.Errorf("SEED_SELLER_PRINCIPAL is required")
	}

	repo := repository.NewProductRepository(conn)
	if _, total, err := repo.List(ctx, 1, 0); err != nil {
		return fmt.Errorf("list products: %w", err)
	} else if total > 0 && os.Getenv("FORCE_SEED") != "true" {
		log.Printf("products already exist; skipping seed (set FORCE_SEED=true to override)")
		return nil
	}

	products := []model.Product{
		{
			Name:            "Field Recording Pack Vol.1",
			Description:     "24-bit ambient field recordings, 42 files.",
			ContentLocator:  "content/field-recordings-vol1.zip",
			PriceDrops:      10_000_000,
			SellerPrincipal: seller,
		},
		{
			Name:            "Synthwave Sample Library",
			Description:     "Loops and one-shots, 880 samples, royalty free.",
			ContentLocator:  "content/synthwave-samples.zip",
			PriceDrops:      25_000_000,
			SellerPrincipal: seller,
		},
		{
			Name:            "City Skyline Photo Set",
			Description:     "60 high-resolution skyline photographs.",
			ContentLocator:  "content/city-skyline-set.zip",
			PriceDrops:      5_000_000,
			SellerPrincipal: seller,
		},
	}
	for i := range products {
		if err := repo.Create(ctx, &products[i]); err != nil {
			return fmt.Errorf("create product %q: %w", products[i].Name, err)
		}
		log.Printf("seeded product %d: %s", products[i].ID, products[i].Name)
	}
	return nil
}
