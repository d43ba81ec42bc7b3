// Package repository implements key group persistence for PostgreSQL and MySQL.
//
// Fingerprints are stored as a JSON array in a text column so both databases
// share the same representation. Group names are stored normalized and are
// unique. Every method is transaction-aware through database.GetTx.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/allisson/keycache/internal/database"
	apperrors "github.com/allisson/keycache/internal/errors"
	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
)

// PostgreSQLKeyGroupRepository implements key group persistence for PostgreSQL.
//
// Schema:
//   - id: UUID PRIMARY KEY
//   - name: VARCHAR(255) UNIQUE
//   - description: TEXT
//   - fingerprints: TEXT (JSON array)
//   - created_at, updated_at: TIMESTAMPTZ
type PostgreSQLKeyGroupRepository struct {
	db *sql.DB
}

// NewPostgreSQLKeyGroupRepository creates a new PostgreSQL key group repository.
func NewPostgreSQLKeyGroupRepository(db *sql.DB) *PostgreSQLKeyGroupRepository {
	return &PostgreSQLKeyGroupRepository{db: db}
}

func encodeFingerprints(fingerprints []string) (string, error) {
	if fingerprints == nil {
		fingerprints = []string{}
	}
	data, err := json.Marshal(fingerprints)
	if err != nil {
		return "", apperrors.Wrap(err, "failed to encode fingerprints")
	}
	return string(data), nil
}

func decodeFingerprints(data string, group *groupsDomain.KeyGroup) error {
	if err := json.Unmarshal([]byte(data), &group.Fingerprints); err != nil {
		return apperrors.Wrap(err, "failed to decode fingerprints")
	}
	return nil
}

// Create inserts a new key group.
func (p *PostgreSQLKeyGroupRepository) Create(ctx context.Context, group *groupsDomain.KeyGroup) error {
	querier := database.GetTx(ctx, p.db)

	fingerprints, err := encodeFingerprints(group.Fingerprints)
	if err != nil {
		return err
	}

	query := `INSERT INTO key_groups (id, name, description, fingerprints, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = querier.ExecContext(
		ctx,
		query,
		group.ID,
		group.Name,
		group.Description,
		fingerprints,
		group.CreatedAt,
		group.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create key group")
	}
	return nil
}

// Update replaces the name, description and fingerprints of a key group.
// It returns ErrGroupNotFound when no row matches.
func (p *PostgreSQLKeyGroupRepository) Update(ctx context.Context, group *groupsDomain.KeyGroup) error {
	querier := database.GetTx(ctx, p.db)

	fingerprints, err := encodeFingerprints(group.Fingerprints)
	if err != nil {
		return err
	}

	query := `UPDATE key_groups SET name = $1, description = $2, fingerprints = $3, updated_at = $4
			  WHERE id = $5`

	result, err := querier.ExecContext(
		ctx,
		query,
		group.Name,
		group.Description,
		fingerprints,
		group.UpdatedAt,
		group.ID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update key group")
	}
	return checkAffected(result, "failed to update key group")
}

// Delete removes a key group. It returns ErrGroupNotFound when no row matches.
func (p *PostgreSQLKeyGroupRepository) Delete(ctx context.Context, groupID uuid.UUID) error {
	querier := database.GetTx(ctx, p.db)

	result, err := querier.ExecContext(ctx, `DELETE FROM key_groups WHERE id = $1`, groupID)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete key group")
	}
	return checkAffected(result, "failed to delete key group")
}

func checkAffected(result sql.Result, message string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, message)
	}
	if affected == 0 {
		return groupsDomain.ErrGroupNotFound
	}
	return nil
}

func (p *PostgreSQLKeyGroupRepository) scanOne(row *sql.Row, message string) (*groupsDomain.KeyGroup, error) {
	var group groupsDomain.KeyGroup
	var fingerprints string
	err := row.Scan(
		&group.ID,
		&group.Name,
		&group.Description,
		&fingerprints,
		&group.CreatedAt,
		&group.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, groupsDomain.ErrGroupNotFound
		}
		return nil, apperrors.Wrap(err, message)
	}
	if err := decodeFingerprints(fingerprints, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

// Get retrieves a key group by ID.
func (p *PostgreSQLKeyGroupRepository) Get(ctx context.Context, groupID uuid.UUID) (*groupsDomain.KeyGroup, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, name, description, fingerprints, created_at, updated_at
			  FROM key_groups WHERE id = $1`

	return p.scanOne(querier.QueryRowContext(ctx, query, groupID), "failed to get key group")
}

// GetByName retrieves a key group by its normalized name.
func (p *PostgreSQLKeyGroupRepository) GetByName(ctx context.Context, name string) (*groupsDomain.KeyGroup, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, name, description, fingerprints, created_at, updated_at
			  FROM key_groups WHERE name = $1`

	return p.scanOne(querier.QueryRowContext(ctx, query, name), "failed to get key group by name")
}

// List retrieves key groups ordered by name with pagination.
func (p *PostgreSQLKeyGroupRepository) List(
	ctx context.Context,
	offset, limit int,
) ([]*groupsDomain.KeyGroup, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, name, description, fingerprints, created_at, updated_at
			  FROM key_groups ORDER BY name ASC LIMIT $1 OFFSET $2`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list key groups")
	}
	return p.scanAll(rows)
}

// ListAll retrieves every key group ordered by name. The refresh controller
// loads groups through this method.
func (p *PostgreSQLKeyGroupRepository) ListAll(ctx context.Context) ([]*groupsDomain.KeyGroup, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT id, name, description, fingerprints, created_at, updated_at
			  FROM key_groups ORDER BY name ASC`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list key groups")
	}
	return p.scanAll(rows)
}

func (p *PostgreSQLKeyGroupRepository) scanAll(rows *sql.Rows) ([]*groupsDomain.KeyGroup, error) {
	defer func() {
		_ = rows.Close()
	}()

	groups := make([]*groupsDomain.KeyGroup, 0)
	for rows.Next() {
		var group groupsDomain.KeyGroup
		var fingerprints string
		if err := rows.Scan(
			&group.ID,
			&group.Name,
			&group.Description,
			&fingerprints,
			&group.CreatedAt,
			&group.UpdatedAt,
		); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan key group")
		}
		if err := decodeFingerprints(fingerprints, &group); err != nil {
			return nil, err
		}
		groups = append(groups, &group)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate key groups")
	}
	return groups, nil
}
