package repository

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/recipe-service/internal/domain"
)

type coalescingCredentialRepository struct {
	CredentialStore
	group   singleflight.Group
	timeout time.Duration
}

// NewCoalescingCredentialRepository wraps next so that concurrent lookups of
// the same identifier share a single store round trip. The shared call is
// detached from any one caller's cancellation and bounded by timeout instead.
func NewCoalescingCredentialRepository(next CredentialStore, timeout time.Duration) CredentialStore {
	return &coalescingCredentialRepository{CredentialStore: next, timeout: timeout}
}

func (r *coalescingCredentialRepository) FindByIdentifier(ctx context.Context, identifier string) (*domain.Credential, error) {
	ch := r.group.DoChan(identifier, func() (any, error) {
		shared := context.WithoutCancel(ctx)
		if r.timeout > 0 {
			var cancel context.CancelFunc
			shared, cancel = context.WithTimeout(shared, r.timeout)
			defer cancel()
		}
		return r.CredentialStore.FindByIdentifier(shared, identifier)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneCredential(res.Val.(*domain.Credential)), nil
	}
}
