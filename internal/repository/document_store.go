package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/eisbuk/EisBuk-sub003/internal/errors"
)

var (
	ErrNotFound      = apperrors.New(apperrors.KindReferential, apperrors.CodeNotFound, "document not found")
	ErrAlreadyExists = apperrors.New(apperrors.KindInvalid, apperrors.CodeAlreadyExists, "document already exists")
)

// Document is a stored document with its decoded data.
type Document struct {
	Path string
	ID   string
	Data map[string]any
}

// Decode unmarshals the document data into out.
func (d *Document) Decode(out any) error {
	return Decode(d.Data, out)
}

// FieldUpdate changes exactly one field path of a document. Delete removes
// the field and everything below it.
type FieldUpdate struct {
	Path   []string
	Value  any
	Delete bool
}

// SetField builds an update writing value at path.
func SetField(value any, path ...string) FieldUpdate {
	return FieldUpdate{Path: path, Value: value}
}

// DeleteField builds an update removing path.
func DeleteField(path ...string) FieldUpdate {
	return FieldUpdate{Path: path, Delete: true}
}

type OpKind int

const (
	OpSet OpKind = iota
	OpMerge
	OpCreate
	OpDelete
	OpUpdate
	OpIncrement
)

// Op is one write of a batch or transaction.
type Op struct {
	Kind    OpKind
	Path    string
	Data    any
	Updates []FieldUpdate
	Field   []string
	Delta   int64
}

func SetOp(path string, data any) Op    { return Op{Kind: OpSet, Path: path, Data: data} }
func MergeOp(path string, data any) Op  { return Op{Kind: OpMerge, Path: path, Data: data} }
func CreateOp(path string, data any) Op { return Op{Kind: OpCreate, Path: path, Data: data} }
func DeleteOp(path string) Op           { return Op{Kind: OpDelete, Path: path} }

func UpdateOp(path string, updates ...FieldUpdate) Op {
	return Op{Kind: OpUpdate, Path: path, Updates: updates}
}

func IncrementOp(path string, delta int64, field ...string) Op {
	return Op{Kind: OpIncrement, Path: path, Field: field, Delta: delta}
}

// Filter is an equality filter on a top-level or nested field.
type Filter struct {
	Field []string
	Value any
}

// Where builds an equality filter.
func Where(value any, field ...string) Filter {
	return Filter{Field: field, Value: value}
}

// Tx is the view of the store inside RunTransaction. Reads see the
// transaction's own writes.
type Tx interface {
	Get(path string) (*Document, error)
	Apply(op Op) error
}

// DocumentStore is the primary store gateway. Whole-document writes (set,
// merge, create, delete) publish change events after commit; field updates
// and increments are aggregate writes and publish nothing.
type DocumentStore interface {
	GetDocument(ctx context.Context, path string) (*Document, error)
	SetDocument(ctx context.Context, path string, data any, merge bool) error
	CreateDocument(ctx context.Context, path string, data any) error
	DeleteDocument(ctx context.Context, path string) error
	UpdateFields(ctx context.Context, path string, updates ...FieldUpdate) error
	IncrementField(ctx context.Context, path string, delta int64, field ...string) error
	RunBatch(ctx context.Context, ops ...Op) error
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	QueryCollection(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
}

// SplitPath validates a document path and returns its collection and id.
// Document paths have an even number of non-empty segments.
func SplitPath(path string) (collection, id string, err error) {
	segments := strings.Split(path, "/")
	if len(segments) < 2 || len(segments)%2 != 0 {
		return "", "", invalidPath(path)
	}
	for _, s := range segments {
		if s == "" {
			return "", "", invalidPath(path)
		}
	}
	return strings.Join(segments[:len(segments)-1], "/"), segments[len(segments)-1], nil
}

func invalidPath(path string) error {
	return apperrors.Invalid(apperrors.CodeInvalidDocument, fmt.Sprintf("invalid document path %q", path))
}

// Decode converts normalized document data into out.
func Decode(data map[string]any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.Wrap(apperrors.KindInvalid, apperrors.CodeInvalidDocument, "decode document", err)
	}
	return nil
}
