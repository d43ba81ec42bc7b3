package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/allisson/keycache/internal/database"
	apperrors "github.com/allisson/keycache/internal/errors"
	groupsDomain "github.com/allisson/keycache/internal/groups/domain"
)

// MySQLKeyGroupRepository implements key group persistence for MySQL.
//
// MySQL has no UUID type, so IDs are stored as BINARY(16) and converted with
// uuid.MarshalBinary and uuid.UnmarshalBinary.
type MySQLKeyGroupRepository struct {
	db *sql.DB
}

// NewMySQLKeyGroupRepository creates a new MySQL key group repository.
func NewMySQLKeyGroupRepository(db *sql.DB) *MySQLKeyGroupRepository {
	return &MySQLKeyGroupRepository{db: db}
}

// Create inserts a new key group.
func (m *MySQLKeyGroupRepository) Create(ctx context.Context, group *groupsDomain.KeyGroup) error {
	querier := database.GetTx(ctx, m.db)

	id, err := group.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal key group id")
	}

	fingerprints, err := encodeFingerprints(group.Fingerprints)
	if err != nil {
		return err
	}

	query := `INSERT INTO key_groups (id, name, description, fingerprints, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
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
func (m *MySQLKeyGroupRepository) Update(ctx context.Context, group *groupsDomain.KeyGroup) error {
	querier := database.GetTx(ctx, m.db)

	id, err := group.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal key group id")
	}

	fingerprints, err := encodeFingerprints(group.Fingerprints)
	if err != nil {
		return err
	}

	query := `UPDATE key_groups SET name = ?, description = ?, fingerprints = ?, updated_at = ?
			  WHERE id = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		group.Name,
		group.Description,
		fingerprints,
		group.UpdatedAt,
		id,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update key group")
	}
	return checkAffected(result, "failed to update key group")
}

// Delete removes a key group.
func (m *MySQLKeyGroupRepository) Delete(ctx context.Context, groupID uuid.UUID) error {
	querier := database.GetTx(ctx, m.db)

	id, err := groupID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal key group id")
	}

	result, err := querier.ExecContext(ctx, `DELETE FROM key_groups WHERE id = ?`, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to delete key group")
	}
	return checkAffected(result, "failed to delete key group")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (m *MySQLKeyGroupRepository) scan(row rowScanner) (*groupsDomain.KeyGroup, error) {
	var group groupsDomain.KeyGroup
	var id []byte
	var fingerprints string
	if err := row.Scan(
		&id,
		&group.Name,
		&group.Description,
		&fingerprints,
		&group.CreatedAt,
		&group.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := group.ID.UnmarshalBinary(id); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal key group id")
	}
	if err := decodeFingerprints(fingerprints, &group); err != nil {
		return nil, err
	}
	return &group, nil
}

func (m *MySQLKeyGroupRepository) getOne(ctx context.Context, where string, arg any, message string) (*groupsDomain.KeyGroup, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, name, description, fingerprints, created_at, updated_at
			  FROM key_groups WHERE ` + where + ` = ?`

	group, err := m.scan(querier.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, groupsDomain.ErrGroupNotFound
		}
		return nil, apperrors.Wrap(err, message)
	}
	return group, nil
}

// Get retrieves a key group by ID.
func (m *MySQLKeyGroupRepository) Get(ctx context.Context, groupID uuid.UUID) (*groupsDomain.KeyGroup, error) {
	id, err := groupID.MarshalBinary()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal key group id")
	}
	return m.getOne(ctx, "id", id, "failed to get key group")
}

// GetByName retrieves a key group by its normalized name.
func (m *MySQLKeyGroupRepository) GetByName(ctx context.Context, name string) (*groupsDomain.KeyGroup, error) {
	return m.getOne(ctx, "name", name, "failed to get key group by name")
}

// List retrieves key groups ordered by name with pagination.
func (m *MySQLKeyGroupRepository) List(ctx context.Context, offset, limit int) ([]*groupsDomain.KeyGroup, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, name, description, fingerprints, created_at, updated_at
			  FROM key_groups ORDER BY name ASC LIMIT ? OFFSET ?`

	rows, err := querier.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list key groups")
	}
	return m.scanAll(rows)
}

// ListAll retrieves every key group ordered by name.
func (m *MySQLKeyGroupRepository) ListAll(ctx context.Context) ([]*groupsDomain.KeyGroup, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, name, description, fingerprints, created_at, updated_at
			  FROM key_groups ORDER BY name ASC`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list key groups")
	}
	return m.scanAll(rows)
}

func (m *MySQLKeyGroupRepository) scanAll(rows *sql.Rows) ([]*groupsDomain.KeyGroup, error) {
	defer func() {
		_ = rows.Close()
	}()

	groups := make([]*groupsDomain.KeyGroup, 0)
	for rows.Next() {
		group, err := m.scan(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan key group")
		}
		groups = append(groups, group)
	}

	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate key groups")
	}
	return groups, nil
}
