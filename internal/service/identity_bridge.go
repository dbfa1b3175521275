package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/eisbuk/EisBuk-sub003/internal/changefeed"
	apperrors "github.com/eisbuk/EisBuk-sub003/internal/errors"
	"github.com/eisbuk/EisBuk-sub003/internal/identity"
	"github.com/eisbuk/EisBuk-sub003/internal/model"
	"github.com/eisbuk/EisBuk-sub003/internal/repository"
	"github.com/eisbuk/EisBuk-sub003/internal/trigger"
)

// IdentityBridge maintains bookings/{secretKey}, the only secretKey ->
// customerId mapping. It is the single writer of identity documents.
type IdentityBridge struct {
	store  repository.DocumentStore
	minter identity.TokenMinter
	logger *slog.Logger
}

func NewIdentityBridge(store repository.DocumentStore, minter identity.TokenMinter, logger *slog.Logger) *IdentityBridge {
	return &IdentityBridge{store: store, minter: minter, logger: logger}
}

func (b *IdentityBridge) Handle(ctx context.Context, ev changefeed.Event, params trigger.Params) error {
	org, customerID := params[model.ParamOrganization], params[model.ParamCustomerID]

	var current model.Customer
	exists, err := getDocument(ctx, b.store, model.CustomerPath(org, customerID), &current)
	if err != nil {
		return err
	}
	current.ID = customerID

	var before model.Customer
	if _, err := decodeSnapshot(ev.Before, &before); err != nil {
		return err
	}

	if !exists {
		// the document is gone; retire whatever key it last had
		var after model.Customer
		if _, err := decodeSnapshot(ev.After, &after); err != nil {
			return err
		}
		return b.retire(ctx, org, customerID, before.SecretKey, after.SecretKey)
	}

	if current.SecretKey == "" {
		// a cleared key stops working before a replacement is minted
		if err := b.retire(ctx, org, customerID, before.SecretKey); err != nil {
			return err
		}
		if current.Deleted {
			return nil
		}
		return b.assignKey(ctx, org, customerID)
	}

	// an admin replaced the key: the old identity is tombstoned, bookings
	// made under it stay there
	if before.SecretKey != "" && before.SecretKey != current.SecretKey {
		if err := b.retire(ctx, org, customerID, before.SecretKey); err != nil {
			return err
		}
		b.logger.Info("identity.key_rotated", "org", org, "customer_id", customerID)
	}

	return b.project(ctx, org, &current)
}

// assignKey mints a secret key and, in one transaction, creates the identity
// and stores the key on the customer.
func (b *IdentityBridge) assignKey(ctx context.Context, org, customerID string) error {
	customerPath := model.CustomerPath(org, customerID)

	return b.store.RunTransaction(ctx, func(ctx context.Context, tx repository.Tx) error {
		doc, err := tx.Get(customerPath)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var customer model.Customer
		if err := doc.Decode(&customer); err != nil {
			return err
		}
		if customer.SecretKey != "" || customer.Deleted {
			// assigned by an earlier delivery, or no longer wanted
			return nil
		}
		customer.ID = customerID

		key, err := b.minter.MintCapabilityToken()
		if err != nil {
			return apperrors.Transient("mint secret key", err)
		}

		identityPath := model.BookingIdentityPath(org, key)
		if _, err := tx.Get(identityPath); err == nil {
			b.logger.Error("identity.collision", "org", org, "customer_id", customerID)
			return apperrors.Collision("minted secret key already in use").WithMetadata("organization", org)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if err := tx.Apply(repository.CreateOp(identityPath, model.NewBookingIdentity(&customer))); err != nil {
			if errors.Is(err, repository.ErrAlreadyExists) {
				return apperrors.Collision("minted secret key already in use").WithMetadata("organization", org)
			}
			return err
		}
		if err := tx.Apply(repository.MergeOp(customerPath, map[string]any{model.FieldSecretKey: key})); err != nil {
			return err
		}
		b.logger.Info("identity.key_assigned", "org", org, "customer_id", customerID)
		return nil
	})
}

// project overwrites the identity's own fields from the customer. Nested
// bookedSlots/attendedSlots documents are separate and untouched.
func (b *IdentityBridge) project(ctx context.Context, org string, customer *model.Customer) error {
	path := model.BookingIdentityPath(org, customer.SecretKey)

	return b.store.RunTransaction(ctx, func(ctx context.Context, tx repository.Tx) error {
		doc, err := tx.Get(path)
		switch {
		case err == nil:
			var existing model.BookingIdentity
			if err := doc.Decode(&existing); err != nil {
				return err
			}
			if existing.ID != "" && existing.ID != customer.ID {
				b.logger.Error("identity.collision", "org", org, "customer_id", customer.ID, "owner_id", existing.ID)
				return apperrors.Collision("secret key belongs to another customer").
					WithMetadata("organization", org).
					WithMetadata("customer_id", customer.ID)
			}
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}
		return tx.Apply(repository.SetOp(path, model.NewBookingIdentity(customer)))
	})
}

// retire marks the identities under keys as deleted. The id stays so past
// bookings still resolve to the customer.
func (b *IdentityBridge) retire(ctx context.Context, org, customerID string, keys ...string) error {
	seen := map[string]bool{}
	for _, key := range keys {
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		path := model.BookingIdentityPath(org, key)
		err := b.store.RunTransaction(ctx, func(ctx context.Context, tx repository.Tx) error {
			doc, err := tx.Get(path)
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			var existing model.BookingIdentity
			if err := doc.Decode(&existing); err != nil {
				return err
			}
			if existing.ID != customerID || existing.Deleted {
				return nil
			}
			existing.Deleted = true
			return tx.Apply(repository.SetOp(path, existing))
		})
		if err != nil {
			return err
		}
		b.logger.Info("identity.retired", "org", org, "customer_id", customerID)
	}
	return nil
}
