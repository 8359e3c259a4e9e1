package pipeline

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/aluiziolira/idealista-price-trends/models"
)

// DefaultTable is the table PostgresWriter writes to.
const DefaultTable = "price_trends"

// PostgresWriter inserts summary rows into PostgreSQL.
type PostgresWriter struct {
	db    *sql.DB
	table string
}

// NewPostgresWriter connects to dsn and creates the table when missing.
func NewPostgresWriter(ctx context.Context, dsn, table string) (*PostgresWriter, error) {
	if table == "" {
		table = DefaultTable
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	pw := &PostgresWriter{db: db, table: table}
	if _, err := db.ExecContext(ctx, createTableSQL(table)); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pw, nil
}

func createTableSQL(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id                SERIAL PRIMARY KEY,
			location          TEXT        NOT NULL,
			ts                TIMESTAMP   NOT NULL,
			avg_price_per_sqm DOUBLE PRECISION NOT NULL,
			num_flats         INTEGER     NOT NULL
		)`, pq.QuoteIdentifier(table))
}

func insertSQL(table string) string {
	return fmt.Sprintf(
		"INSERT INTO %s (location, ts, avg_price_per_sqm, num_flats) VALUES ($1, $2, $3, $4)",
		pq.QuoteIdentifier(table))
}

// Append inserts one row.
func (pw *PostgresWriter) Append(row *models.SummaryRow) error {
	if _, err := pw.db.Exec(insertSQL(pw.table), row.Location, row.Timestamp, row.AvgPricePerSqm, row.NumFlats); err != nil {
		return fmt.Errorf("postgres: insert: %w", err)
	}
	return nil
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// Validate checks the connection is still usable.
func (pw *PostgresWriter) Validate() error {
	if err := pw.db.Ping(); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}
