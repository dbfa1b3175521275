package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/eisbuk/EisBuk-sub003/internal/changefeed"
	apperrors "github.com/eisbuk/EisBuk-sub003/internal/errors"
	"github.com/eisbuk/EisBuk-sub003/internal/model"
)

// GormDocumentStore keeps documents in two tables: documents holds one row
// per document, document_fields one row per leaf field. Writing a leaf never
// touches sibling rows, so concurrent handlers writing different leaves of
// the same aggregate do not overwrite each other.
type GormDocumentStore struct {
	db     *gorm.DB
	pub    changefeed.Publisher
	match  func(path string) bool
	logger *slog.Logger
}

type GormOption func(*GormDocumentStore)

// WithPublisher makes whole-document writes publish change events after
// commit. match limits publishing to paths somebody listens to; nil means all.
func WithPublisher(pub changefeed.Publisher, match func(path string) bool) GormOption {
	return func(s *GormDocumentStore) {
		s.pub = pub
		s.match = match
	}
}

func WithGormLogger(logger *slog.Logger) GormOption {
	return func(s *GormDocumentStore) {
		s.logger = logger
	}
}

func NewGormDocumentStore(db *gorm.DB, opts ...GormOption) *GormDocumentStore {
	s := &GormDocumentStore{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *GormDocumentStore) GetDocument(ctx context.Context, path string) (*Document, error) {
	if _, _, err := SplitPath(path); err != nil {
		return nil, err
	}
	return loadDocument(s.db.WithContext(ctx), path)
}

func (s *GormDocumentStore) SetDocument(ctx context.Context, path string, data any, merge bool) error {
	if merge {
		return s.RunBatch(ctx, MergeOp(path, data))
	}
	return s.RunBatch(ctx, SetOp(path, data))
}

func (s *GormDocumentStore) CreateDocument(ctx context.Context, path string, data any) error {
	return s.RunBatch(ctx, CreateOp(path, data))
}

func (s *GormDocumentStore) DeleteDocument(ctx context.Context, path string) error {
	return s.RunBatch(ctx, DeleteOp(path))
}

func (s *GormDocumentStore) UpdateFields(ctx context.Context, path string, updates ...FieldUpdate) error {
	return s.RunBatch(ctx, UpdateOp(path, updates...))
}

func (s *GormDocumentStore) IncrementField(ctx context.Context, path string, delta int64, field ...string) error {
	return s.RunBatch(ctx, IncrementOp(path, delta, field...))
}

// RunBatch applies ops atomically.
func (s *GormDocumentStore) RunBatch(ctx context.Context, ops ...Op) error {
	return s.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		for _, op := range ops {
			if err := tx.Apply(op); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormDocumentStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var pending []changefeed.Event
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		tx := &gormTx{db: db, now: time.Now().UTC()}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		pending = tx.events
		return nil
	})
	if err != nil {
		return classify(err)
	}

	s.publish(ctx, pending)
	return nil
}

func (s *GormDocumentStore) publish(ctx context.Context, events []changefeed.Event) {
	if s.pub == nil {
		return
	}
	for _, ev := range events {
		if s.match != nil && !s.match(ev.Path) {
			continue
		}
		if err := s.pub.Publish(ctx, ev); err != nil {
			// the write is committed; reconciliation repairs missed aggregates
			s.logger.Error("store.publish_failed", "event_id", ev.ID, "path", ev.Path, "error", err)
		}
	}
}

func (s *GormDocumentStore) QueryCollection(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	db := s.db.WithContext(ctx)

	q := db.Model(&model.DocumentRecord{}).Where("collection = ?", collection)
	for _, f := range filters {
		field, err := FieldKey(f.Field)
		if err != nil {
			return nil, err
		}
		value, err := Normalize(f.Value)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode filter: %w", err)
		}
		q = q.Where(
			"EXISTS (SELECT 1 FROM document_fields f WHERE f.path = documents.path AND f.field = ? AND f.value = ?)",
			field, string(raw),
		)
	}

	var records []model.DocumentRecord
	if err := q.Order("path ASC").Find(&records).Error; err != nil {
		return nil, classify(err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	paths := make([]string, len(records))
	for i, r := range records {
		paths[i] = r.Path
	}
	var rows []model.DocumentField
	if err := db.Where("path IN ?", paths).Find(&rows).Error; err != nil {
		return nil, classify(err)
	}
	byPath := make(map[string][]leaf, len(records))
	for _, row := range rows {
		byPath[row.Path] = append(byPath[row.Path], leaf{field: row.Field, value: []byte(row.Value)})
	}

	docs := make([]Document, 0, len(records))
	for _, r := range records {
		data, err := unflatten(byPath[r.Path])
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{Path: r.Path, ID: r.DocID, Data: data})
	}
	return docs, nil
}

type gormTx struct {
	db     *gorm.DB
	now    time.Time
	events []changefeed.Event
}

func (t *gormTx) Get(path string) (*Document, error) {
	if _, _, err := SplitPath(path); err != nil {
		return nil, err
	}
	return loadDocument(t.db, path)
}

func (t *gormTx) Apply(op Op) error {
	if _, _, err := SplitPath(op.Path); err != nil {
		return err
	}

	switch op.Kind {
	case OpUpdate:
		return t.update(op.Path, op.Updates)
	case OpIncrement:
		return t.increment(op.Path, op.Field, op.Delta)
	}

	before, err := loadData(t.db, op.Path)
	if err != nil {
		return err
	}

	switch op.Kind {
	case OpSet:
		err = t.set(op.Path, op.Data)
	case OpMerge:
		err = t.merge(op.Path, op.Data)
	case OpCreate:
		if before != nil {
			return ErrAlreadyExists
		}
		err = t.create(op.Path, op.Data)
	case OpDelete:
		if before == nil {
			return nil
		}
		err = t.delete(op.Path)
	default:
		return fmt.Errorf("unknown op kind %d", op.Kind)
	}
	if err != nil {
		return err
	}

	var after map[string]any
	if op.Kind != OpDelete {
		if after, err = loadData(t.db, op.Path); err != nil {
			return err
		}
	}
	if before != nil && after != nil && Equal(before, after) {
		return nil
	}
	t.events = append(t.events, changefeed.NewEvent(op.Path, before, after))
	return nil
}

func (t *gormTx) create(path string, data any) error {
	doc, err := NormalizeDocument(data)
	if err != nil {
		return err
	}
	collection, id, _ := SplitPath(path)
	rec := model.DocumentRecord{Path: path, Collection: collection, DocID: id, CreatedAt: t.now, UpdatedAt: t.now}
	if err := t.db.Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyExists
		}
		return err
	}
	return t.insertLeaves(path, doc)
}

func (t *gormTx) set(path string, data any) error {
	doc, err := NormalizeDocument(data)
	if err != nil {
		return err
	}
	if err := t.ensureDocument(path); err != nil {
		return err
	}
	if err := t.db.Where("path = ?", path).Delete(&model.DocumentField{}).Error; err != nil {
		return err
	}
	return t.insertLeaves(path, doc)
}

func (t *gormTx) merge(path string, data any) error {
	doc, err := NormalizeDocument(data)
	if err != nil {
		return err
	}
	if err := t.ensureDocument(path); err != nil {
		return err
	}
	if len(doc) == 0 {
		return nil
	}
	leaves, err := flatten(nil, doc)
	if err != nil {
		return err
	}
	for _, l := range leaves {
		if err := t.writeLeaf(path, l); err != nil {
			return err
		}
	}
	return nil
}

func (t *gormTx) delete(path string) error {
	if err := t.db.Where("path = ?", path).Delete(&model.DocumentField{}).Error; err != nil {
		return err
	}
	return t.db.Where("path = ?", path).Delete(&model.DocumentRecord{}).Error
}

// update applies field updates, creating the document when missing.
func (t *gormTx) update(path string, updates []FieldUpdate) error {
	if err := t.ensureDocument(path); err != nil {
		return err
	}
	for _, u := range updates {
		field, err := FieldKey(u.Path)
		if err != nil {
			return err
		}
		if u.Delete {
			if err := t.deleteField(path, field); err != nil {
				return err
			}
			continue
		}
		value, err := Normalize(u.Value)
		if err != nil {
			return err
		}
		leaves, err := flatten(u.Path, value)
		if err != nil {
			return err
		}
		// clear the subtree first so a map value replaces the old one whole
		if err := t.clearField(path, field); err != nil {
			return err
		}
		for _, l := range leaves {
			if err := t.writeLeaf(path, l); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *gormTx) increment(path string, fieldPath []string, delta int64) error {
	field, err := FieldKey(fieldPath)
	if err != nil {
		return err
	}
	if err := t.ensureDocument(path); err != nil {
		return err
	}
	if err := t.clearAround(path, field); err != nil {
		return err
	}

	row := model.DocumentField{Path: path, Field: field, Value: strconv.FormatInt(delta, 10)}
	return t.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "path"}, {Name: "field"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value": gorm.Expr("CAST(CAST(document_fields.value AS BIGINT) + ? AS TEXT)", delta),
		}),
	}).Create(&row).Error
}

func (t *gormTx) ensureDocument(path string) error {
	collection, id, _ := SplitPath(path)
	rec := model.DocumentRecord{Path: path, Collection: collection, DocID: id, CreatedAt: t.now, UpdatedAt: t.now}
	return t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.Assignments(map[string]any{"updated_at": t.now}),
	}).Create(&rec).Error
}

func (t *gormTx) insertLeaves(path string, doc map[string]any) error {
	if len(doc) == 0 {
		return nil
	}
	leaves, err := flatten(nil, doc)
	if err != nil {
		return err
	}
	rows := make([]model.DocumentField, len(leaves))
	for i, l := range leaves {
		rows[i] = model.DocumentField{Path: path, Field: l.field, Value: string(l.value)}
	}
	return t.db.CreateInBatches(rows, 200).Error
}

// writeLeaf replaces the value at l.field. Rows below it and scalar rows
// above it are removed so the document stays a tree.
func (t *gormTx) writeLeaf(path string, l leaf) error {
	if err := t.clearAround(path, l.field); err != nil {
		return err
	}
	row := model.DocumentField{Path: path, Field: l.field, Value: string(l.value)}
	return t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}, {Name: "field"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&row).Error
}

func (t *gormTx) clearAround(path, field string) error {
	prefix := field + FieldSeparator
	if err := t.db.
		Where("path = ? AND SUBSTR(field, 1, ?) = ?", path, utf8.RuneCountInString(prefix), prefix).
		Delete(&model.DocumentField{}).Error; err != nil {
		return err
	}
	if up := ancestors(field); len(up) > 0 {
		return t.db.Where("path = ? AND field IN ?", path, up).Delete(&model.DocumentField{}).Error
	}
	return nil
}

// clearField removes field and its subtree.
func (t *gormTx) clearField(path, field string) error {
	prefix := field + FieldSeparator
	return t.db.
		Where("path = ? AND (field = ? OR SUBSTR(field, 1, ?) = ?)", path, field, utf8.RuneCountInString(prefix), prefix).
		Delete(&model.DocumentField{}).Error
}

// deleteField removes field and its subtree. A parent map left without
// children stays behind as an empty map.
func (t *gormTx) deleteField(path, field string) error {
	if err := t.clearField(path, field); err != nil {
		return err
	}

	idx := strings.LastIndex(field, FieldSeparator)
	if idx < 0 {
		return nil
	}
	parent := field[:idx]
	prefix := parent + FieldSeparator

	var remaining int64
	if err := t.db.Model(&model.DocumentField{}).
		Where("path = ? AND (field = ? OR SUBSTR(field, 1, ?) = ?)", path, parent, utf8.RuneCountInString(prefix), prefix).
		Count(&remaining).Error; err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	return t.db.Create(&model.DocumentField{Path: path, Field: parent, Value: "{}"}).Error
}

func loadDocument(db *gorm.DB, path string) (*Document, error) {
	data, err := loadData(db, path)
	if err != nil {
		return nil, classify(err)
	}
	if data == nil {
		return nil, ErrNotFound
	}
	_, id, _ := SplitPath(path)
	return &Document{Path: path, ID: id, Data: data}, nil
}

// loadData returns nil when the document does not exist.
func loadData(db *gorm.DB, path string) (map[string]any, error) {
	var rec model.DocumentRecord
	if err := db.Where("path = ?", path).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var rows []model.DocumentField
	if err := db.Where("path = ?", path).Find(&rows).Error; err != nil {
		return nil, err
	}
	leaves := make([]leaf, len(rows))
	for i, row := range rows {
		leaves[i] = leaf{field: row.Field, value: []byte(row.Value)}
	}
	return unflatten(leaves)
}

// classify leaves domain errors alone and marks driver failures transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var classified *apperrors.Error
	if errors.As(err, &classified) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyExists
	}
	return apperrors.Transient("document store", err)
}
