package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/eisbuk/EisBuk-sub003/internal/changefeed"
	apperrors "github.com/eisbuk/EisBuk-sub003/internal/errors"
)

// DocumentsCollection is the Mongo collection holding every document.
const DocumentsCollection = "documents"

const dataField = "data"

// MongoDocumentStore keeps each document as {_id: path, collection, data}.
// Field updates translate to $set/$unset on dotted paths under data.
// Transactions need a replica set.
type MongoDocumentStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	pub    changefeed.Publisher
	match  func(path string) bool
	logger *slog.Logger
}

type MongoOption func(*MongoDocumentStore)

func WithMongoPublisher(pub changefeed.Publisher, match func(path string) bool) MongoOption {
	return func(s *MongoDocumentStore) {
		s.pub = pub
		s.match = match
	}
}

func WithMongoLogger(logger *slog.Logger) MongoOption {
	return func(s *MongoDocumentStore) {
		s.logger = logger
	}
}

func NewMongoDocumentStore(client *mongo.Client, database string, opts ...MongoOption) *MongoDocumentStore {
	s := &MongoDocumentStore{
		client: client,
		coll:   client.Database(database).Collection(DocumentsCollection),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureIndexes creates the collection index used by queries.
func (s *MongoDocumentStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "collection", Value: 1}},
	})
	if err != nil {
		return apperrors.Transient("create mongo index", err)
	}
	return nil
}

func (s *MongoDocumentStore) GetDocument(ctx context.Context, path string) (*Document, error) {
	if _, _, err := SplitPath(path); err != nil {
		return nil, err
	}
	data, err := mongoLoad(ctx, s.coll, path)
	if err != nil {
		return nil, mongoClassify(err)
	}
	if data == nil {
		return nil, ErrNotFound
	}
	_, id, _ := SplitPath(path)
	return &Document{Path: path, ID: id, Data: data}, nil
}

func (s *MongoDocumentStore) SetDocument(ctx context.Context, path string, data any, merge bool) error {
	if merge {
		return s.RunBatch(ctx, MergeOp(path, data))
	}
	return s.RunBatch(ctx, SetOp(path, data))
}

func (s *MongoDocumentStore) CreateDocument(ctx context.Context, path string, data any) error {
	return s.RunBatch(ctx, CreateOp(path, data))
}

func (s *MongoDocumentStore) DeleteDocument(ctx context.Context, path string) error {
	return s.RunBatch(ctx, DeleteOp(path))
}

func (s *MongoDocumentStore) UpdateFields(ctx context.Context, path string, updates ...FieldUpdate) error {
	return s.RunBatch(ctx, UpdateOp(path, updates...))
}

func (s *MongoDocumentStore) IncrementField(ctx context.Context, path string, delta int64, field ...string) error {
	return s.RunBatch(ctx, IncrementOp(path, delta, field...))
}

func (s *MongoDocumentStore) RunBatch(ctx context.Context, ops ...Op) error {
	return s.RunTransaction(ctx, func(_ context.Context, tx Tx) error {
		for _, op := range ops {
			if err := tx.Apply(op); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *MongoDocumentStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return apperrors.Transient("start mongo session", err)
	}
	defer session.EndSession(ctx)

	var pending []changefeed.Event
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		// the callback may be retried on transient transaction errors
		tx := &mongoTx{ctx: sc, coll: s.coll}
		if err := fn(sc, tx); err != nil {
			return nil, err
		}
		pending = tx.events
		return nil, nil
	})
	if err != nil {
		return mongoClassify(err)
	}

	if s.pub == nil {
		return nil
	}
	for _, ev := range pending {
		if s.match != nil && !s.match(ev.Path) {
			continue
		}
		if err := s.pub.Publish(ctx, ev); err != nil {
			s.logger.Error("store.publish_failed", "event_id", ev.ID, "path", ev.Path, "error", err)
		}
	}
	return nil
}

func (s *MongoDocumentStore) QueryCollection(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	filter, err := queryFilter(collection, filters)
	if err != nil {
		return nil, err
	}
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, mongoClassify(err)
	}
	defer cur.Close(ctx)

	var docs []Document
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, mongoClassify(err)
		}
		path, _ := raw["_id"].(string)
		_, id, err := SplitPath(path)
		if err != nil {
			return nil, err
		}
		data, _ := fromBSON(raw[dataField]).(map[string]any)
		if data == nil {
			data = map[string]any{}
		}
		docs = append(docs, Document{Path: path, ID: id, Data: data})
	}
	if err := cur.Err(); err != nil {
		return nil, mongoClassify(err)
	}
	return docs, nil
}

type mongoTx struct {
	ctx    context.Context
	coll   *mongo.Collection
	events []changefeed.Event
}

func (t *mongoTx) Get(path string) (*Document, error) {
	if _, _, err := SplitPath(path); err != nil {
		return nil, err
	}
	data, err := mongoLoad(t.ctx, t.coll, path)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrNotFound
	}
	_, id, _ := SplitPath(path)
	return &Document{Path: path, ID: id, Data: data}, nil
}

func (t *mongoTx) Apply(op Op) error {
	collection, _, err := SplitPath(op.Path)
	if err != nil {
		return err
	}
	byID := bson.M{"_id": op.Path}
	upsert := options.Update().SetUpsert(true)

	switch op.Kind {
	case OpUpdate:
		update, canUpsert, err := fieldUpdateDoc(collection, op.Updates)
		if err != nil {
			return err
		}
		_, err = t.coll.UpdateOne(t.ctx, byID, update, options.Update().SetUpsert(canUpsert))
		return err
	case OpIncrement:
		update, err := incrementDoc(collection, op.Field, op.Delta)
		if err != nil {
			return err
		}
		_, err = t.coll.UpdateOne(t.ctx, byID, update, upsert)
		return err
	}

	before, err := mongoLoad(t.ctx, t.coll, op.Path)
	if err != nil {
		return err
	}

	switch op.Kind {
	case OpSet:
		doc, err := NormalizeDocument(op.Data)
		if err != nil {
			return err
		}
		_, err = t.coll.ReplaceOne(t.ctx, byID, storedDoc(op.Path, collection, doc), options.Replace().SetUpsert(true))
		if err != nil {
			return err
		}
	case OpMerge:
		doc, err := NormalizeDocument(op.Data)
		if err != nil {
			return err
		}
		update, err := mergeDoc(collection, doc)
		if err != nil {
			return err
		}
		if _, err := t.coll.UpdateOne(t.ctx, byID, update, upsert); err != nil {
			return err
		}
	case OpCreate:
		if before != nil {
			return ErrAlreadyExists
		}
		doc, err := NormalizeDocument(op.Data)
		if err != nil {
			return err
		}
		if _, err := t.coll.InsertOne(t.ctx, storedDoc(op.Path, collection, doc)); err != nil {
			return err
		}
	case OpDelete:
		if before == nil {
			return nil
		}
		if _, err := t.coll.DeleteOne(t.ctx, byID); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown op kind %d", op.Kind)
	}

	var after map[string]any
	if op.Kind != OpDelete {
		if after, err = mongoLoad(t.ctx, t.coll, op.Path); err != nil {
			return err
		}
	}
	if before != nil && after != nil && Equal(before, after) {
		return nil
	}
	t.events = append(t.events, changefeed.NewEvent(op.Path, before, after))
	return nil
}

func mongoLoad(ctx context.Context, coll *mongo.Collection, path string) (map[string]any, error) {
	var raw bson.M
	err := coll.FindOne(ctx, bson.M{"_id": path}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	data, _ := fromBSON(raw[dataField]).(map[string]any)
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

func storedDoc(path, collection string, data map[string]any) bson.M {
	return bson.M{"_id": path, "collection": collection, dataField: data}
}

func dataKey(field []string) (string, error) {
	key, err := FieldKey(field)
	if err != nil {
		return "", err
	}
	return dataField + FieldSeparator + key, nil
}

// fieldUpdateDoc builds the update for a list of field updates and reports
// whether it may upsert. Paths may not overlap: Mongo rejects conflicting
// operators on one path.
func fieldUpdateDoc(collection string, updates []FieldUpdate) (bson.M, bool, error) {
	set := bson.M{}
	unset := bson.M{}
	keys := make([]string, 0, len(updates))
	for _, u := range updates {
		key, err := dataKey(u.Path)
		if err != nil {
			return nil, false, err
		}
		keys = append(keys, key)
		if u.Delete {
			unset[key] = ""
			continue
		}
		value, err := Normalize(u.Value)
		if err != nil {
			return nil, false, err
		}
		set[key] = value
	}
	if err := checkOverlap(keys); err != nil {
		return nil, false, err
	}

	if len(set) == 0 {
		// delete-only: nothing to create, and data may not appear in
		// $setOnInsert next to an $unset of one of its children
		return bson.M{"$unset": unset}, false, nil
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"collection": collection},
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update, true, nil
}

// mergeDoc deep-merges doc: every leaf becomes its own $set.
func mergeDoc(collection string, doc map[string]any) (bson.M, error) {
	if len(doc) == 0 {
		return bson.M{"$setOnInsert": bson.M{"collection": collection, dataField: bson.M{}}}, nil
	}
	leaves, err := flatten(nil, doc)
	if err != nil {
		return nil, err
	}
	set := bson.M{}
	for _, l := range leaves {
		value, err := decodeJSON(l.value)
		if err != nil {
			return nil, err
		}
		set[dataField+FieldSeparator+l.field] = value
	}
	return bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"collection": collection},
	}, nil
}

func incrementDoc(collection string, field []string, delta int64) (bson.M, error) {
	key, err := dataKey(field)
	if err != nil {
		return nil, err
	}
	return bson.M{
		"$inc":         bson.M{key: delta},
		"$setOnInsert": bson.M{"collection": collection},
	}, nil
}

func queryFilter(collection string, filters []Filter) (bson.M, error) {
	filter := bson.M{"collection": collection}
	for _, f := range filters {
		key, err := dataKey(f.Field)
		if err != nil {
			return nil, err
		}
		value, err := Normalize(f.Value)
		if err != nil {
			return nil, err
		}
		filter[key] = value
	}
	return filter, nil
}

func checkOverlap(keys []string) error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if prev == cur || strings.HasPrefix(cur, prev+FieldSeparator) {
			return apperrors.Invalid(apperrors.CodeInvalidFieldPath, fmt.Sprintf("overlapping field paths %q and %q", prev, cur))
		}
	}
	return nil
}

// fromBSON converts decoded BSON into the same shapes Normalize produces.
func fromBSON(v any) any {
	switch t := v.(type) {
	case primitive.M:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = fromBSON(child)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = fromBSON(child)
		}
		return out
	case primitive.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = fromBSON(child)
		}
		return out
	case int32:
		return int64(t)
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

func mongoClassify(err error) error {
	if err == nil {
		return nil
	}
	var classified *apperrors.Error
	if errors.As(err, &classified) {
		return err
	}
	if mongo.IsDuplicateKeyError(err) {
		return ErrAlreadyExists
	}
	return apperrors.Transient("document store", err)
}
