package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/lewtec/labelflow/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DatasetStore exports reconciled records into a SQLite database, so
// downstream training pipelines can query annotations with plain SQL.
type DatasetStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// LabelCount is one row of the per-label histogram.
type LabelCount struct {
	Label string
	Count int64
}

// OpenDataset opens (or creates) the dataset database at filename. A nil
// logger means slog.Default.
func OpenDataset(filename string, logger *slog.Logger) (*DatasetStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", filename+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("while opening dataset %s: %w", filename, err)
	}
	return &DatasetStore{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *DatasetStore) Close() error {
	return s.db.Close()
}

// Migrate brings the dataset schema up to date. Running it on a current
// database is a no-op.
func (s *DatasetStore) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("while reading embedded migrations: %w", err)
	}
	driver, err := sqlitemigrate.WithInstance(s.db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("while preparing migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("while preparing migrations: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("while migrating dataset schema: %w", err)
	}
	s.logger.Debug("dataset schema up to date")
	return nil
}

// Export upserts every entry that carries a record, replacing its label
// rows. It returns the number of exported images.
func (s *DatasetStore) Export(ctx context.Context, entries []*domain.Entry) (int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("while starting export transaction: %w", err)
	}
	defer tx.Rollback()

	exported := 0
	for _, entry := range entries {
		rec := entry.Record
		if rec == nil {
			continue
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO images (hash, filename, file_size, describe, state)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(hash) DO UPDATE SET
  filename = excluded.filename,
  file_size = excluded.file_size,
  describe = excluded.describe,
  state = excluded.state,
  exported_at = CURRENT_TIMESTAMP
		`, rec.Hash, rec.Filename, rec.FileSize, rec.Describe, entry.State.String())
		if err != nil {
			return 0, fmt.Errorf("while exporting image %s: %w", rec.Filename, err)
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM image_labels WHERE hash = ?`, rec.Hash)
		if err != nil {
			return 0, fmt.Errorf("while clearing labels of %s: %w", rec.Filename, err)
		}
		for i, label := range rec.Label {
			_, err = tx.ExecContext(ctx, `
INSERT INTO image_labels (hash, position, label) VALUES (?, ?, ?)
			`, rec.Hash, i, label)
			if err != nil {
				return 0, fmt.Errorf("while exporting label %q of %s: %w", label, rec.Filename, err)
			}
		}
		exported++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("while committing export: %w", err)
	}
	s.logger.Debug("dataset export finished", "images", exported)
	return exported, nil
}

// CountImages returns the number of exported images.
func (s *DatasetStore) CountImages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&n)
	return n, err
}

// LabelCounts returns the per-label histogram, most used first. Labels
// with equal counts come out in alphabetical order.
func (s *DatasetStore) LabelCounts(ctx context.Context) ([]LabelCount, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT label, COUNT(*) AS n
FROM image_labels
GROUP BY label
ORDER BY n DESC, label ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("while querying label counts: %w", err)
	}
	defer rows.Close()

	var out []LabelCount
	for rows.Next() {
		var lc LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}
