package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"

	"github.com/xenking/restaurant-orders/db"
	"github.com/xenking/restaurant-orders/internal/catalog"
	"github.com/xenking/restaurant-orders/internal/domain/auth"
	"github.com/xenking/restaurant-orders/internal/storage/postgres"
)

const (
	adminKeyID   = "default-admin"
	adminKeyName = "Default admin key"
)

func main() {
	var (
		databaseURL  string
		menuFile     string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&menuFile, "menu-file", "", "path to a catalog JSON file (defaults to the embedded menu)")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or ORDERS_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or ORDERS_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("ORDERS_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("ORDERS_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, menuFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, menuFile, apiKey, pepper string) error {
	c, err := loadCatalog(menuFile)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("upserting menu items", slog.Int("count", len(c.Items)))
	if err := postgres.NewMenuRepository(pool).Upsert(ctx, c.Items); err != nil {
		return errors.Wrap(err, "seed menu")
	}

	slog.Info("upserting offers", slog.Int("count", len(c.Offers)))
	if err := postgres.NewOfferRepository(pool).Upsert(ctx, c.Offers); err != nil {
		return errors.Wrap(err, "seed offers")
	}

	if apiKey == "" {
		slog.Warn("no admin API key given, skipping")
		return nil
	}
	if err := seedAPIKey(ctx, postgres.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	data := db.SeedMenu
	if path != "" {
		slog.Info("reading catalog file", slog.String("path", path))

		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read catalog file")
		}
	}
	return catalog.ParseDocument(data)
}

func seedAPIKey(ctx context.Context, repo *postgres.APIKeyRepository, apiKey, pepper string) error {
	slog.Info("seeding admin API key")

	if err := repo.Upsert(ctx, auth.APIKeyInfo{
		ID:      adminKeyID,
		KeyHash: auth.HashAPIKey([]byte(pepper), apiKey),
		Name:    adminKeyName,
		Scopes:  []string{auth.ScopeOrdersAdmin},
	}); err != nil {
		return errors.Wrap(err, "upsert admin API key")
	}

	slog.Info("upserted API key", slog.String("id", adminKeyID), slog.String("name", adminKeyName))

	return nil
}
