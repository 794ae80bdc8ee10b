// Command verify-chain checks the audit hash chain directly against the
// database, without going through a running server. Use it when the server is
// down, or when you want a verification the server itself cannot influence.
//
// Usage:
//
//	MONBAN_DB_DRIVER=sqlite MONBAN_DATABASE_URL=monban.db go run ./scripts/verify-chain
//
// The script reads every audit record in append order, recomputes each
// content hash, and walks the prev_hash links back to the genesis value. It
// prints the number of records verified and exits 0, or names the first bad
// record and exits 1.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/monban/internal/integrity"
	"github.com/ashita-ai/monban/internal/model"
	"github.com/ashita-ai/monban/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	driver := os.Getenv("MONBAN_DB_DRIVER")
	if driver == "" {
		driver = "sqlite"
	}
	dbURL := os.Getenv("MONBAN_DATABASE_URL")
	if dbURL == "" {
		dbURL = "monban.db"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	logger := slog.New(slog.DiscardHandler)
	store, err := storage.Open(ctx, driver, dbURL, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close(context.Background())

	records, err := store.ListAudit(ctx, model.AuditFilter{})
	if err != nil {
		return fmt.Errorf("list audit: %w", err)
	}

	ok, badIndex := integrity.VerifyChain(records)
	if !ok {
		fmt.Fprintf(os.Stderr, "FAILED at record %d (id %s): hash chain broken\n",
			badIndex, records[badIndex].ID)
		os.Exit(1)
	}

	fmt.Printf("OK: %d records verified\n", len(records))
	return nil
}
