package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/recipe-service/internal/domain"
)

// CredentialSeed is one entry of the seed file. Exactly one of Password and
// PasswordHash is set.
type CredentialSeed struct {
	Identifier   string   `yaml:"identifier"`
	SubjectID    string   `yaml:"subject_id"`
	Password     string   `yaml:"password"`
	PasswordHash string   `yaml:"password_hash"`
	Roles        []string `yaml:"roles"`
}

type seedFile struct {
	Credentials []CredentialSeed `yaml:"credentials"`
}

// PasswordHasher turns a plaintext password into a stored hash.
type PasswordHasher func(password string) (string, error)

// LoadCredentialSeeds parses a YAML seed file.
func LoadCredentialSeeds(path string) ([]CredentialSeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, seed := range file.Credentials {
		if strings.TrimSpace(seed.Identifier) == "" {
			return nil, fmt.Errorf("seed %d: identifier required", i)
		}
		if (seed.Password == "") == (seed.PasswordHash == "") {
			return nil, fmt.Errorf("seed %q: exactly one of password or password_hash required", seed.Identifier)
		}
	}
	return file.Credentials, nil
}

// SeedCredentials creates the seeded credentials, skipping identifiers that
// already exist. It returns the number of credentials created.
func SeedCredentials(ctx context.Context, store CredentialStore, seeds []CredentialSeed, hash PasswordHasher, logger *zap.Logger) (int, error) {
	created := 0
	for _, seed := range seeds {
		passwordHash := seed.PasswordHash
		if passwordHash == "" {
			hashed, err := hash(seed.Password)
			if err != nil {
				return created, fmt.Errorf("hash seed %q: %w", seed.Identifier, err)
			}
			passwordHash = hashed
		}

		subjectID := seed.SubjectID
		if subjectID == "" {
			subjectID = uuid.NewString()
		}
		roles := make([]domain.Role, 0, len(seed.Roles))
		for _, role := range seed.Roles {
			roles = append(roles, domain.Role(strings.ToLower(strings.TrimSpace(role))))
		}
		if len(roles) == 0 {
			roles = append(roles, domain.RoleUser)
		}

		err := store.Create(ctx, &domain.Credential{
			SubjectID:    subjectID,
			Identifier:   seed.Identifier,
			PasswordHash: passwordHash,
			Roles:        roles,
			CreatedAt:    time.Now().UTC(),
		})
		switch {
		case errors.Is(err, ErrCredentialExists):
			logger.Debug("seed credential exists", zap.String("identifier", seed.Identifier))
		case err != nil:
			return created, fmt.Errorf("seed %q: %w", seed.Identifier, err)
		default:
			created++
		}
	}
	return created, nil
}
