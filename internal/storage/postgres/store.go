// Package postgres implements the storage interfaces on PostgreSQL via
// pgx. It is the store of record; prescription updates and their
// transition events commit in one transaction through the outbox.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/rxcore/internal/domain/drug"
	"github.com/clinicore/rxcore/internal/errs"
)

// Store bundles the pool shared by the typed stores.
type Store struct {
	pool *pgxpool.Pool
}

// New creates the store around an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for infrastructure components.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// uniqueViolation is the Postgres error code for a unique constraint.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// --- storage.DrugStore ---

// DrugStore persists the drug catalog.
type DrugStore struct{ *Store }

// Drugs returns the drug store view.
func (s *Store) Drugs() DrugStore { return DrugStore{s} }

func (s DrugStore) Create(ctx context.Context, d *drug.Drug) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO drugs (id, code, name, generic_name, description, type)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.Code, d.Name, d.GenericName, d.Description, string(d.Type))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("drug %s: %w", d.ID, errs.ErrConflict)
		}
		return fmt.Errorf("insert drug: %w", err)
	}
	return nil
}

func (s DrugStore) Get(ctx context.Context, id string) (*drug.Drug, error) {
	d := &drug.Drug{}
	var typ string
	err := s.pool.QueryRow(ctx, `
		SELECT id, code, name, generic_name, description, type
		FROM drugs WHERE id = $1`, id,
	).Scan(&d.ID, &d.Code, &d.Name, &d.GenericName, &d.Description, &typ)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("drug %s: %w", id, errs.ErrNotFound)
		}
		return nil, fmt.Errorf("get drug: %w", err)
	}
	d.Type = drug.Type(typ)
	return d, nil
}

func (s DrugStore) ListByCode(ctx context.Context, code string) ([]drug.Drug, error) {
	return s.list(ctx, `
		SELECT id, code, name, generic_name, description, type
		FROM drugs WHERE code = $1 ORDER BY name`, code)
}

func (s DrugStore) List(ctx context.Context) ([]drug.Drug, error) {
	return s.list(ctx, `
		SELECT id, code, name, generic_name, description, type
		FROM drugs ORDER BY name`)
}

func (s DrugStore) list(ctx context.Context, query string, args ...interface{}) ([]drug.Drug, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list drugs: %w", err)
	}
	defer rows.Close()

	var out []drug.Drug
	for rows.Next() {
		var d drug.Drug
		var typ string
		if err := rows.Scan(&d.ID, &d.Code, &d.Name, &d.GenericName, &d.Description, &typ); err != nil {
			return nil, fmt.Errorf("scan drug: %w", err)
		}
		d.Type = drug.Type(typ)
		out = append(out, d)
	}
	return out, rows.Err()
}
