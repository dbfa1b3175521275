package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/eisbuk/EisBuk-sub003/internal/calendar"
	apperrors "github.com/eisbuk/EisBuk-sub003/internal/errors"
	"github.com/eisbuk/EisBuk-sub003/internal/model"
	"github.com/eisbuk/EisBuk-sub003/internal/repository"
)

// decodeSnapshot decodes an event snapshot. A nil snapshot reports false.
func decodeSnapshot(data map[string]any, out any) (bool, error) {
	if data == nil {
		return false, nil
	}
	if err := repository.Decode(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// getDocument decodes the document at path into out and reports whether it
// exists.
func getDocument(ctx context.Context, store repository.DocumentStore, path string, out any) (bool, error) {
	doc, err := store.GetDocument(ctx, path)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := doc.Decode(out); err != nil {
		return false, err
	}
	return true, nil
}

// snapshotDate returns the "date" field of a snapshot, or "" when absent.
func snapshotDate(data map[string]any) string {
	if data == nil {
		return ""
	}
	date, _ := data[model.FieldDate].(string)
	return date
}

func monthOf(date string) (string, error) {
	month, err := calendar.MonthString(date)
	if err != nil {
		return "", apperrors.Invalid(apperrors.CodeInvalidDocument, fmt.Sprintf("invalid date %q", date))
	}
	return month, nil
}

// resolveIdentity maps a secret key to its booking identity. A missing
// identity is a referential error: nothing downstream may be written.
func resolveIdentity(ctx context.Context, store repository.DocumentStore, org, secretKey string) (*model.BookingIdentity, error) {
	var bi model.BookingIdentity
	ok, err := getDocument(ctx, store, model.BookingIdentityPath(org, secretKey), &bi)
	if err != nil {
		return nil, err
	}
	if !ok || bi.ID == "" {
		return nil, apperrors.Referential(apperrors.CodeIdentityNotFound, "no booking identity for secret key").
			WithMetadata("organization", org)
	}
	return &bi, nil
}
