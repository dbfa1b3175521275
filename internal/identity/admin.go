package identity

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/eisbuk/EisBuk-sub003/internal/model"
	"github.com/eisbuk/EisBuk-sub003/internal/repository"
)

var ErrInvalidPrincipal = errors.New("invalid principal")

// AdminChecker answers whether principal administers org.
type AdminChecker interface {
	IsAdmin(ctx context.Context, org, principal string) (bool, error)
}

// StoreAdminChecker reads the admins list of the organization document.
type StoreAdminChecker struct {
	store repository.DocumentStore
}

func NewStoreAdminChecker(store repository.DocumentStore) *StoreAdminChecker {
	return &StoreAdminChecker{store: store}
}

// IsAdmin:
//   - rejects an empty principal;
//   - treats a missing organization as having no admins;
//   - matches the principal against organizations/{org}.admins.
func (c *StoreAdminChecker) IsAdmin(ctx context.Context, org, principal string) (bool, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return false, ErrInvalidPrincipal
	}

	doc, err := c.store.GetDocument(ctx, model.OrganizationPath(org))
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var organization model.Organization
	if err := doc.Decode(&organization); err != nil {
		return false, err
	}
	return slices.Contains(organization.Admins, principal), nil
}
