package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"

	"laptop-price-tracker/models"
	"laptop-price-tracker/utils"
)

// advisoryLockID serialises merge runs across processes sharing one database.
const advisoryLockID int64 = 0x70726963 // "pric"

const upsertBatchSize = 200

// pgUndefinedTable is returned when the history table has not been created.
const pgUndefinedTable = "42P01"

type column struct {
	name   string
	pgType string
}

// historyColumns is the on-disk shape of an Observation. Keys come first.
// New columns may be appended; migrate only ever adds.
var historyColumns = []column{
	{"product_key", "TEXT NOT NULL"},
	{"capture_date", "TEXT NOT NULL"},
	{"title", "TEXT"},
	{"link", "TEXT"},
	{"thumbnail", "TEXT"},
	{"delivery", "TEXT"},
	{"display_size", "TEXT"},
	{"memory_size", "TEXT"},
	{"storage_size", "TEXT"},
	{"operating_system", "TEXT"},
	{"price", "DOUBLE PRECISION"},
	{"rating", "DOUBLE PRECISION"},
	{"review_count", "BIGINT"},
	{"previous_price", "DOUBLE PRECISION"},
	{"previous_capture_date", "TEXT"},
	{"price_difference", "DOUBLE PRECISION"},
	{"price_change_percent", "DOUBLE PRECISION"},
	{"buy_now", "BOOLEAN NOT NULL DEFAULT FALSE"},
	{"price_stability", "DOUBLE PRECISION NOT NULL DEFAULT 0"},
	{"stability_label", "TEXT"},
}

// PostgresStore persists history to PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *utils.Logger
	mu     sync.Mutex
}

// NewPostgresStore opens a connection to PostgreSQL, runs the additive schema
// migration and returns a ready-to-use PostgresStore.
func NewPostgresStore(dsn string, logger *utils.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		logger.Debug("[postgres] Ping failed (attempt %d/10): %v", i+1, err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := &PostgresStore{db: db, logger: logger}
	if err := ps.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return ps, nil
}

func (ps *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			product_key  TEXT NOT NULL,
			capture_date TEXT NOT NULL,
			UNIQUE (product_key, capture_date)
		)`, TableName),
	}
	for _, c := range historyColumns[2:] {
		stmts = append(stmts, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s`, TableName, c.name, c.pgType))
	}
	stmts = append(stmts,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_capture_date ON %[1]s(capture_date)`, TableName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%[1]s_buy_now ON %[1]s(buy_now)`, TableName),
	)

	for _, stmt := range stmts {
		if _, err := ps.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (ps *PostgresStore) ReadAll(ctx context.Context) ([]models.Observation, error) {
	return pgReadAll(ctx, ps.db)
}

func (ps *PostgresStore) Upsert(ctx context.Context, rows []models.Observation) error {
	return ps.withTx(ctx, func(tx *sql.Tx) error {
		return pgUpsert(ctx, tx, rows)
	})
}

// Exclusive holds a transaction-scoped advisory lock for the duration of fn.
func (ps *PostgresStore) Exclusive(ctx context.Context, fn func(tx HistoryStore) error) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	return ps.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockID); err != nil {
			return fmt.Errorf("postgres: acquire lock: %w", err)
		}
		return fn(&pgTx{tx: tx})
	})
}

func (ps *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				ps.logger.Warn("[postgres] Rollback failed: %v", rbErr)
			}
		} else if err = tx.Commit(); err != nil {
			err = fmt.Errorf("postgres: commit: %w", err)
		}
	}()

	return fn(tx)
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

// pgTx is a HistoryStore bound to one open transaction.
type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) ReadAll(ctx context.Context) ([]models.Observation, error) {
	return pgReadAll(ctx, t.tx)
}

func (t *pgTx) Upsert(ctx context.Context, rows []models.Observation) error {
	return pgUpsert(ctx, t.tx, rows)
}

func (t *pgTx) Exclusive(context.Context, func(HistoryStore) error) error {
	return ErrNestedExclusive
}

func (t *pgTx) Close() error { return nil }

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func columnNames() []string {
	names := make([]string, len(historyColumns))
	for i, c := range historyColumns {
		names[i] = c.name
	}
	return names
}

func pgReadAll(ctx context.Context, q queryer) ([]models.Observation, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY product_key, capture_date`,
		strings.Join(columnNames(), ", "), TableName)

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUndefinedTable {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: fetch all: %w", err)
	}
	defer rows.Close()

	var out []models.Observation
	for rows.Next() {
		var (
			o                           models.Observation
			captureDate                 string
			previousDate, label         sql.NullString
			title, link, thumb, deliv   sql.NullString
			display, memory, disk, opSy sql.NullString
		)
		if err := rows.Scan(
			&o.ProductKey, &captureDate,
			&title, &link, &thumb, &deliv, &display, &memory, &disk, &opSy,
			&o.Price, &o.Rating, &o.ReviewCount,
			&o.PreviousPrice, &previousDate, &o.PriceDifference, &o.PriceChangePercent,
			&o.BuyNow, &o.PriceStability, &label,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		o.CaptureDate = models.Date(captureDate)
		o.PreviousCaptureDate = models.Date(previousDate.String)
		o.StabilityLabel = label.String
		o.Details = models.Details{
			Title: title.String, Link: link.String, Thumbnail: thumb.String, Delivery: deliv.String,
			DisplaySize: display.String, MemorySize: memory.String, StorageSize: disk.String,
			OperatingSystem: opSy.String,
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func pgUpsert(ctx context.Context, e execer, rows []models.Observation) error {
	rows = dedupeLast(rows)
	for i := 0; i < len(rows); i += upsertBatchSize {
		end := i + upsertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		query, args := buildUpsert(rows[i:end])
		if _, err := e.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("postgres: upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// buildUpsert renders one multi-row INSERT ... ON CONFLICT statement.
func buildUpsert(batch []models.Observation) (string, []any) {
	names := columnNames()
	width := len(names)

	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]any, 0, len(batch)*width)

	for idx, o := range batch {
		ph := make([]string, width)
		for c := range ph {
			ph[c] = fmt.Sprintf("$%d", idx*width+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
		valueArgs = append(valueArgs, rowValues(o)...)
	}

	updates := make([]string, 0, width-2)
	for _, n := range names[2:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", n, n))
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES %s
		ON CONFLICT (product_key, capture_date) DO UPDATE SET %s`,
		TableName, strings.Join(names, ", "), strings.Join(valueStrings, ","), strings.Join(updates, ", "))
	return query, valueArgs
}

// rowValues lists o's fields in historyColumns order.
func rowValues(o models.Observation) []any {
	return []any{
		o.ProductKey, string(o.CaptureDate),
		o.Title, o.Link, o.Thumbnail, o.Delivery,
		o.DisplaySize, o.MemorySize, o.StorageSize, o.OperatingSystem,
		o.Price, o.Rating, o.ReviewCount,
		o.PreviousPrice, string(o.PreviousCaptureDate), o.PriceDifference, o.PriceChangePercent,
		o.BuyNow, o.PriceStability, o.StabilityLabel,
	}
}
