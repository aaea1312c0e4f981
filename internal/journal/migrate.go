package journal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrMigrationChanged is returned when an applied migration file was edited afterwards
var ErrMigrationChanged = errors.New("applied migration was modified")

// migrationLockKey serializes migrators of the journal schema across processes
const migrationLockKey int64 = 0x6a6f75726e616c

type migration struct {
	name     string
	sql      string
	checksum string
}

// RunMigrations applies the journal's .sql files from migrationsDir in name order.
// Each file runs in its own transaction under a Postgres advisory lock.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrationsDir string) error {
	migrations, err := loadMigrations(os.DirFS(migrationsDir))
	if err != nil {
		return err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
		return fmt.Errorf("failed to take migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockKey); err != nil {
			slog.Warn("failed to release migration lock", "error", err)
		}
	}()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS journal_migrations (
			name VARCHAR(255) PRIMARY KEY,
			checksum CHAR(64) NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[string]string)
	rows, err := conn.Query(ctx, `SELECT name, checksum FROM journal_migrations`)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	for rows.Next() {
		var name, sum string
		if err := rows.Scan(&name, &sum); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan applied migration: %w", err)
		}
		applied[name] = sum
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	pending, err := planMigrations(migrations, applied)
	if err != nil {
		return err
	}

	for _, m := range pending {
		slog.Info("applying migration", "migration", m.name)

		tx, err := conn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction for %s: %w", m.name, err)
		}

		if _, err := tx.Exec(ctx, m.sql); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to execute migration %s: %w", m.name, err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO journal_migrations (name, checksum) VALUES ($1, $2)`,
			m.name, m.checksum,
		); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", m.name, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.name, err)
		}
	}

	slog.Info("journal schema up to date", "applied", len(pending), "total", len(migrations))
	return nil
}

// loadMigrations reads the top-level .sql files of fsys, sorted by name
func loadMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		content, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(content)
		out = append(out, migration{
			name:     e.Name(),
			sql:      string(content),
			checksum: hex.EncodeToString(sum[:]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })

	return out, nil
}

// planMigrations returns the migrations not yet applied.
// An applied migration whose checksum no longer matches its file is an error.
func planMigrations(migrations []migration, applied map[string]string) ([]migration, error) {
	var pending []migration
	for _, m := range migrations {
		sum, ok := applied[m.name]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if sum != m.checksum {
			return nil, fmt.Errorf("%w: %s", ErrMigrationChanged, m.name)
		}
	}
	return pending, nil
}

// MigrateFromDSN runs migrations over a short-lived pgx pool
func MigrateFromDSN(ctx context.Context, dsn, migrationsDir string) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	return RunMigrations(ctx, pool, migrationsDir)
}
