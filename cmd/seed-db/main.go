package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/pos-checkout/internal/domain/giftcard"
	"github.com/xenking/pos-checkout/internal/handler"
	"github.com/xenking/pos-checkout/internal/repository"
)

const demoBusiness = "demo-cafe"

type seedConfig struct {
	databaseURL string
	ownerKey    string
	employeeKey string
	pepper      string
}

func main() {
	var cfg seedConfig
	flag.StringVar(&cfg.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&cfg.ownerKey, "owner-key", "", "owner API key to seed (or POS_SEED_OWNER_KEY env)")
	flag.StringVar(&cfg.employeeKey, "employee-key", "", "employee API key to seed (or POS_SEED_EMPLOYEE_KEY env)")
	flag.StringVar(&cfg.pepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or POS_API_KEY_PEPPER env)")
	flag.Parse()

	envDefault(&cfg.databaseURL, "DATABASE_URL")
	envDefault(&cfg.ownerKey, "POS_SEED_OWNER_KEY")
	envDefault(&cfg.employeeKey, "POS_SEED_EMPLOYEE_KEY")
	envDefault(&cfg.pepper, "POS_API_KEY_PEPPER")

	if cfg.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if cfg.ownerKey == "" || cfg.employeeKey == "" {
		slog.Error("owner and employee API keys are required: set --owner-key and --employee-key")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func envDefault(dst *string, key string) {
	if *dst == "" {
		*dst = os.Getenv(key)
	}
}

func run(ctx context.Context, cfg seedConfig) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, cfg.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	version, err := repository.Migrate(pool)
	if err != nil {
		return errors.Wrap(err, "run migrations")
	}
	slog.Info("migrations applied", slog.Uint64("version", uint64(version)))

	pepper := []byte(cfg.pepper)
	batch := &pgx.Batch{}

	batch.Queue(`
		INSERT INTO businesses (id, name, tax_rate, currency)
		VALUES ($1, $2, $3, 'USD')
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, tax_rate = EXCLUDED.tax_rate`,
		demoBusiness, "Demo Cafe", decimal.RequireFromString("0.10"))

	for _, v := range []struct {
		id, product, variation, group string
		price                          string
	}{
		{id: "coffee-regular", product: "Coffee", variation: "Regular", group: "Drinks", price: "3.00"},
		{id: "coffee-large", product: "Coffee", variation: "Large", group: "Drinks", price: "3.75"},
		{id: "muffin-blueberry", product: "Muffin", variation: "Blueberry", group: "Bakery", price: "2.50"},
	} {
		batch.Queue(`
			INSERT INTO variations (id, business_id, product_name, variation_name, item_group, price)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET price = EXCLUDED.price, archived = FALSE`,
			v.id, demoBusiness, v.product, v.variation, v.group, decimal.RequireFromString(v.price))
	}

	batch.Queue(`
		INSERT INTO discounts (id, business_id, name, kind, value)
		VALUES ($1, $2, $3, 'percentage', $4)
		ON CONFLICT (id) DO UPDATE SET value = EXCLUDED.value, archived = FALSE`,
		"happy-hour", demoBusiness, "Happy hour 10%", decimal.RequireFromString("10"))
	batch.Queue(`
		INSERT INTO discounts (id, business_id, name, kind, value)
		VALUES ($1, $2, $3, 'fixed', $4)
		ON CONFLICT (id) DO UPDATE SET value = EXCLUDED.value, archived = FALSE`,
		"loyalty-050", demoBusiness, "Loyalty 0.50 off", decimal.RequireFromString("0.50"))

	for _, u := range []struct {
		id, name, role, key string
	}{
		{id: "demo-owner", name: "Demo Owner", role: "owner", key: cfg.ownerKey},
		{id: "demo-employee", name: "Demo Employee", role: "employee", key: cfg.employeeKey},
	} {
		batch.Queue(`
			INSERT INTO users (id, business_id, name, role)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role`,
			u.id, demoBusiness, u.name, u.role)
		batch.Queue(`
			INSERT INTO api_keys (id, key_hash, user_id, name)
			VALUES ($1, $2, $3, 'seed')
			ON CONFLICT (id) DO UPDATE SET key_hash = EXCLUDED.key_hash, active = TRUE`,
			u.id+"-key", handler.HashAPIKey(pepper, u.key), u.id)
	}

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "upsert seed rows")
		}

		issued, err := repository.NewGiftcardRepository(tx).Issue(ctx, demoBusiness, []giftcard.Card{
			{ID: "GIFT-DEMO-20", Balance: decimal.RequireFromString("20.00")},
			{ID: "GIFT-DEMO-5", Balance: decimal.RequireFromString("5.00")},
		})
		if err != nil {
			return errors.Wrap(err, "issue giftcards")
		}
		slog.Info("giftcards issued", slog.Int64("count", issued))
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("seeded demo business",
		slog.String("business", demoBusiness),
		slog.Int("statements", batch.Len()),
	)
	return nil
}
