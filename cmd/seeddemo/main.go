package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/uptrace/bun"

	"returnscan/infrastructure/sqlite"
)

// Seeds one demo return order with an individually tracked asset and a batch
// tracked asset, so the scan screen has something to work against.
func main() {
	migrationsDir, err := resolveMigrationsDir()
	if err != nil {
		log.Fatalf("resolve migrations dir: %v", err)
	}

	defaultDBPath := filepath.Join(filepath.Dir(filepath.Dir(filepath.Dir(migrationsDir))), "returnscan.db")
	dbPath := getenv("SQLITE_PATH", defaultDBPath)

	db, err := sqlite.OpenDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := sqlite.ApplyMigrations(context.Background(), db, migrationsDir); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	reference := getenv("DEMO_ORDER_REFERENCE", "ORD-DEMO-0001")
	if err := seedDemoOrder(context.Background(), db, reference); err != nil {
		log.Fatalf("seed demo order: %v", err)
	}

	fmt.Printf("seeded demo order (reference=%s)\n", reference)
}

func seedDemoOrder(ctx context.Context, db *sqlite.DB, reference string) error {
	return db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var existing int64
		if err := tx.NewRaw(`SELECT COUNT(*) FROM orders WHERE reference = ?`, reference).Scan(ctx, &existing); err != nil {
			return err
		}
		if existing > 0 {
			return nil
		}

		res, err := tx.ExecContext(ctx, `INSERT INTO orders (reference, status) VALUES (?, 'open')`, reference)
		if err != nil {
			return err
		}
		orderID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		assets := []struct {
			qrCode   string
			name     string
			tracking string
			required int64
		}{
			{"QR-DEMO-CHAIR-001", "Folding chair", "INDIVIDUAL", 1},
			{"QR-DEMO-PLATE-SET", "Dinner plate", "BATCH", 10},
		}
		for _, a := range assets {
			var assetID int64
			err := tx.NewRaw(`SELECT id FROM assets WHERE qr_code = ?`, a.qrCode).Scan(ctx, &assetID)
			if err != nil {
				if !errors.Is(err, sql.ErrNoRows) {
					return err
				}
				res, err := tx.ExecContext(ctx,
					`INSERT INTO assets (qr_code, name, tracking_method) VALUES (?, ?, ?)`,
					a.qrCode, a.name, a.tracking)
				if err != nil {
					return err
				}
				if assetID, err = res.LastInsertId(); err != nil {
					return err
				}
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO order_return_items (order_id, asset_id, required_quantity) VALUES (?, ?, ?)`,
				orderID, assetID, a.required); err != nil {
				return err
			}
		}
		return nil
	})
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func resolveMigrationsDir() (string, error) {
	candidates := []string{
		filepath.Join("infrastructure", "sqlite", "migrations"),
		filepath.Join("..", "..", "infrastructure", "sqlite", "migrations"),
	}

	if _, file, _, ok := runtime.Caller(0); ok {
		candidates = append(candidates, filepath.Join(filepath.Dir(file), "..", "..", "infrastructure", "sqlite", "migrations"))
	}

	tried := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		absPath, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		tried = append(tried, absPath)

		info, err := os.Stat(absPath)
		if err != nil {
			continue
		}
		if info.IsDir() {
			return absPath, nil
		}
	}

	return "", fmt.Errorf("migrations dir not found; tried: %s", strings.Join(tried, ", "))
}
