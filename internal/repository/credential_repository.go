package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/recipe-service/internal/domain"
)

var (
	// ErrCredentialNotFound is returned when no credential matches the lookup.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrCredentialExists is returned when creating a duplicate identifier.
	ErrCredentialExists = errors.New("credential already exists")
)

// CredentialStore defines persistence access for login credentials.
type CredentialStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*domain.Credential, error)
	GetBySubjectID(ctx context.Context, subjectID string) (*domain.Credential, error)
	Create(ctx context.Context, credential *domain.Credential) error
	// UpdatePasswordHash replaces the stored hash of identifier.
	UpdatePasswordHash(ctx context.Context, identifier, passwordHash string) error
}

// DBTX is the subset of pgxpool.Pool used by the repositories.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type credentialRepository struct {
	db DBTX
}

// NewCredentialRepository returns a Postgres-backed store keeping each
// credential as a JSONB document.
func NewCredentialRepository(db DBTX) CredentialStore {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) FindByIdentifier(ctx context.Context, identifier string) (*domain.Credential, error) {
	const query = `SELECT document FROM credentials WHERE identifier=$1`
	return r.findOne(ctx, query, identifier)
}

func (r *credentialRepository) GetBySubjectID(ctx context.Context, subjectID string) (*domain.Credential, error) {
	const query = `SELECT document FROM credentials WHERE subject_id=$1`
	return r.findOne(ctx, query, subjectID)
}

func (r *credentialRepository) Create(ctx context.Context, credential *domain.Credential) error {
	const query = `
        INSERT INTO credentials (identifier, subject_id, document, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (identifier) DO NOTHING`

	doc, err := json.Marshal(credential)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	cmd, err := r.db.Exec(ctx, query,
		credential.Identifier,
		credential.SubjectID,
		doc,
		credential.CreatedAt,
	)
	if err != nil {
		// ON CONFLICT covers the identifier only; a duplicate subject_id still
		// raises SQLSTATE 23505.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrCredentialExists
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrCredentialExists
	}
	return nil
}

func (r *credentialRepository) UpdatePasswordHash(ctx context.Context, identifier, passwordHash string) error {
	const query = `
        UPDATE credentials
        SET document = jsonb_set(document, '{password_hash}', to_jsonb($2::text))
        WHERE identifier=$1`

	cmd, err := r.db.Exec(ctx, query, identifier, passwordHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

func (r *credentialRepository) findOne(ctx context.Context, query string, arg string) (*domain.Credential, error) {
	var doc []byte
	if err := r.db.QueryRow(ctx, query, arg).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, err
	}
	var credential domain.Credential
	if err := json.Unmarshal(doc, &credential); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return &credential, nil
}
