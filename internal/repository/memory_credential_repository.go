package repository

import (
	"context"
	"sync"

	"github.com/spec-kit/recipe-service/internal/domain"
)

type memoryCredentialRepository struct {
	mu           sync.RWMutex
	byIdentifier map[string]*domain.Credential
	bySubject    map[string]*domain.Credential
}

// NewMemoryCredentialRepository returns a process-local store, used when no
// database is configured.
func NewMemoryCredentialRepository() CredentialStore {
	return &memoryCredentialRepository{
		byIdentifier: make(map[string]*domain.Credential),
		bySubject:    make(map[string]*domain.Credential),
	}
}

func (r *memoryCredentialRepository) FindByIdentifier(ctx context.Context, identifier string) (*domain.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	credential, ok := r.byIdentifier[identifier]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return cloneCredential(credential), nil
}

func (r *memoryCredentialRepository) GetBySubjectID(ctx context.Context, subjectID string) (*domain.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	credential, ok := r.bySubject[subjectID]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return cloneCredential(credential), nil
}

func (r *memoryCredentialRepository) Create(ctx context.Context, credential *domain.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byIdentifier[credential.Identifier]; exists {
		return ErrCredentialExists
	}
	stored := cloneCredential(credential)
	r.byIdentifier[stored.Identifier] = stored
	r.bySubject[stored.SubjectID] = stored
	return nil
}

func (r *memoryCredentialRepository) UpdatePasswordHash(ctx context.Context, identifier, passwordHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	credential, ok := r.byIdentifier[identifier]
	if !ok {
		return ErrCredentialNotFound
	}
	credential.PasswordHash = passwordHash
	return nil
}

func cloneCredential(c *domain.Credential) *domain.Credential {
	if c == nil {
		return nil
	}
	out := *c
	out.Roles = append([]domain.Role(nil), c.Roles...)
	return &out
}
