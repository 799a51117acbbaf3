package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/repository"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = pq.ErrorCode("23505")

//go:embed schema.sql
var schema string

var _ repository.TxRunner = (*Store)(nil)

// Store is the Postgres implementation of the repositories
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", classify(err))
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", classify(err))
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return classify(s.db.PingContext(ctx))
}

// Migrate applies the embedded schema
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", classify(err))
	}
	return nil
}

// WithTx runs fn in a database transaction
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer tx.Rollback()

	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classify(err))
	}
	return nil
}

// UpsertProducts writes catalog entries, used to seed the catalog
func (s *Store) UpsertProducts(ctx context.Context, products []models.Product) error {
	query := `
		INSERT INTO products (id, name, category, price, send_to_kitchen, active)
		VALUES (:id, :name, :category, :price, :send_to_kitchen, :active)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			category = EXCLUDED.category,
			price = EXCLUDED.price,
			send_to_kitchen = EXCLUDED.send_to_kitchen,
			active = EXCLUDED.active`

	for _, p := range products {
		if _, err := s.db.NamedExecContext(ctx, query, p); err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", p.ID, classify(err))
		}
	}
	return nil
}

// txRepo implements repository.Tx on top of one database transaction
type txRepo struct {
	tx *sqlx.Tx
}

// classify marks transport failures with models.ErrConnectivity and unique
// violations with models.ErrConflict
func classify(err error) error {
	if err == nil {
		return nil
	}

	connectivity := errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded)

	var netErr net.Error
	if errors.As(err, &netErr) {
		connectivity = true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "08":
			connectivity = true
		case pqErr.Code == uniqueViolation:
			return fmt.Errorf("%w: %w", models.ErrConflict, err)
		}
	}

	if connectivity {
		return fmt.Errorf("%w: %w", models.ErrConnectivity, err)
	}
	return err
}

func expectAffected(res sql.Result, what string, id interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %v", models.ErrNotFound, what, id)
	}
	return nil
}
