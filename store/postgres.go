package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"tree-game-server/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NotifyChannel is the Postgres channel every committed write is announced on.
const NotifyChannel = "documents"

var fieldPath = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)*$`)

// PostgresStore keeps all collections in one jsonb `documents` table. Optimistic
// concurrency uses the row version column; change feeds ride on LISTEN/NOTIFY.
type PostgresStore struct {
	DB       *gorm.DB
	hub      *Hub
	listener *pq.Listener
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{DB: db, hub: NewHub()}
}

// Migrate creates the documents table and its indexes.
func (s *PostgresStore) Migrate() error {
	if err := s.DB.AutoMigrate(&models.Document{}); err != nil {
		return err
	}
	return s.DB.Exec(`CREATE INDEX IF NOT EXISTS idx_documents_data ON documents USING GIN (data jsonb_path_ops)`).Error
}

// Listen subscribes to NotifyChannel so that writes from every server process reach
// local subscribers. Without it only this process's own writes are published.
func (s *PostgresStore) Listen(dsn string) error {
	l := pq.NewListener(dsn, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("⚠️ [Store] listener event %d: %v", ev, err)
		}
	})
	if err := l.Listen(NotifyChannel); err != nil {
		l.Close()
		return fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}
	s.listener = l

	go func() {
		for n := range l.Notify {
			if n == nil {
				// connection was re-established, notifications may have been lost
				s.hub.PublishAll()
				continue
			}
			collection, key, ok := strings.Cut(n.Extra, "/")
			if !ok {
				continue
			}
			s.hub.Publish(collection, key)
		}
	}()
	log.Printf("✅ [Store] listening for document changes on %q", NotifyChannel)
	return nil
}

func (s *PostgresStore) announce(db *gorm.DB, ref docRef) error {
	return db.Exec("SELECT pg_notify(?, ?)", NotifyChannel, ref.collection+"/"+ref.key).Error
}

// published is called after commit; with a listener attached the notification arrives
// through Postgres instead.
func (s *PostgresStore) published(refs ...docRef) {
	if s.listener != nil {
		return
	}
	for _, ref := range refs {
		s.hub.Publish(ref.collection, ref.key)
	}
}

func toSnapshot(d models.Document) Snapshot {
	return Snapshot{
		Collection: d.Collection,
		Key:        d.Key,
		Version:    d.Version,
		Data:       []byte(d.Data),
		CreateTime: d.CreatedAt,
		UpdateTime: d.UpdatedAt,
	}
}

func (s *PostgresStore) Get(ctx context.Context, collection, key string) (Snapshot, error) {
	var doc models.Document
	err := s.DB.WithContext(ctx).
		Where("collection = ? AND key = ?", collection, key).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Snapshot{Collection: collection, Key: key}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	return toSnapshot(doc), nil
}

func upsert(db *gorm.DB, collection, key string, data []byte) error {
	doc := models.Document{Collection: collection, Key: key, Version: 1, Data: datatypes.JSON(data)}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "collection"}, {Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"data":       gorm.Expr("EXCLUDED.data"),
			"version":    gorm.Expr("documents.version + 1"),
			"updated_at": gorm.Expr("now()"),
		}),
	}).Create(&doc).Error
}

func (s *PostgresStore) Set(ctx context.Context, collection, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	ref := docRef{collection, key}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsert(tx, collection, key, data); err != nil {
			return err
		}
		return s.announce(tx, ref)
	})
	if err != nil {
		return err
	}
	s.published(ref)
	return nil
}

func (s *PostgresStore) Merge(ctx context.Context, collection, key string, fields map[string]any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	ref := docRef{collection, key}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc := models.Document{Collection: collection, Key: key, Version: 1, Data: datatypes.JSON(data)}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "collection"}, {Name: "key"}},
			DoUpdates: clause.Assignments(map[string]any{
				"data":       gorm.Expr("documents.data || EXCLUDED.data"),
				"version":    gorm.Expr("documents.version + 1"),
				"updated_at": gorm.Expr("now()"),
			}),
		}).Create(&doc).Error
		if err != nil {
			return err
		}
		return s.announce(tx, ref)
	})
	if err != nil {
		return err
	}
	s.published(ref)
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, collection string, v any) (string, error) {
	key := uuid.NewString()
	if err := s.Set(ctx, collection, key, v); err != nil {
		return "", err
	}
	return key, nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	refs := make([]docRef, len(keys))
	for i, k := range keys {
		refs[i] = docRef{collection, k}
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection = ? AND key IN ?", collection, keys).Delete(&models.Document{}).Error; err != nil {
			return err
		}
		for _, ref := range refs {
			if err := s.announce(tx, ref); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.published(refs...)
	return nil
}

// nest turns a dotted path and value into the JSON object used with the @> operator.
func nest(path string, v any) map[string]any {
	parts := strings.Split(path, ".")
	out := map[string]any{parts[len(parts)-1]: v}
	for i := len(parts) - 2; i >= 0; i-- {
		out = map[string]any{parts[i]: out}
	}
	return out
}

func (s *PostgresStore) Query(ctx context.Context, q Query) ([]Snapshot, error) {
	db := s.DB.WithContext(ctx).Where("collection = ?", q.Collection)
	for _, f := range q.Where {
		if !fieldPath.MatchString(f.Field) {
			return nil, fmt.Errorf("invalid filter field %q", f.Field)
		}
		data, err := json.Marshal(nest(f.Field, f.Value))
		if err != nil {
			return nil, fmt.Errorf("encode filter %q: %w", f.Field, err)
		}
		db = db.Where("data @> ?::jsonb", string(data))
	}

	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	if q.OrderBy == "" {
		db = db.Order("created_at " + dir).Order("key " + dir)
	} else {
		if !fieldPath.MatchString(q.OrderBy) {
			return nil, fmt.Errorf("invalid order field %q", q.OrderBy)
		}
		path := strings.ReplaceAll(q.OrderBy, ".", ",")
		db = db.Order(fmt.Sprintf("data #> '{%s}' %s", path, dir)).Order("created_at " + dir)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}

	var docs []models.Document
	if err := db.Find(&docs).Error; err != nil {
		return nil, err
	}
	out := make([]Snapshot, len(docs))
	for i, d := range docs {
		out[i] = toSnapshot(d)
	}
	return out, nil
}

type pgTx struct {
	s   *PostgresStore
	buf *txBuffer
}

func (t *pgTx) Get(ctx context.Context, collection, key string) (Snapshot, error) {
	ref := docRef{collection, key}
	if snap, ok, err := t.buf.buffered(ref); ok {
		return snap, err
	}
	snap, err := t.s.Get(ctx, collection, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return snap, err
	}
	if _, seen := t.buf.reads[ref]; !seen {
		t.buf.reads[ref] = snap.Version
	} else if t.buf.reads[ref] != snap.Version {
		return Snapshot{}, ErrConflict
	}
	return snap, err
}

func (t *pgTx) Set(collection, key string, v any) error {
	return t.buf.set(collection, key, v)
}

func (t *pgTx) Delete(collection, key string) {
	t.buf.remove(collection, key)
}

func (s *PostgresStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return runWithRetry(ctx, func() error {
		tx := &pgTx{s: s, buf: newTxBuffer()}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if len(tx.buf.writes) == 0 {
			return nil
		}
		if err := s.commit(ctx, tx.buf); err != nil {
			return err
		}
		refs := make([]docRef, len(tx.buf.writes))
		for i, w := range tx.buf.writes {
			refs[i] = w.ref
		}
		s.published(refs...)
		return nil
	})
}

// commit verifies the read set and applies the write set in one SQL transaction.
// Rows the transaction only read are share-locked and compared, rows it writes are
// updated conditionally on the version it saw.
func (s *PostgresStore) commit(ctx context.Context, buf *txBuffer) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for ref, version := range buf.reads {
			if _, written := buf.index[ref]; written {
				continue
			}
			var current []int64
			err := tx.Model(&models.Document{}).
				Clauses(clause.Locking{Strength: "SHARE"}).
				Where("collection = ? AND key = ?", ref.collection, ref.key).
				Pluck("version", &current).Error
			if err != nil {
				return err
			}
			var seen int64
			if len(current) > 0 {
				seen = current[0]
			}
			if seen != version {
				return ErrConflict
			}
		}

		for _, w := range buf.writes {
			version, read := buf.reads[w.ref]
			if err := s.apply(tx, w, version, read); err != nil {
				return err
			}
			if err := s.announce(tx, w.ref); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) apply(tx *gorm.DB, w pendingWrite, version int64, read bool) error {
	where := tx.Where("collection = ? AND key = ?", w.ref.collection, w.ref.key)

	switch {
	case w.delete && read && version > 0:
		res := where.Where("version = ?", version).Delete(&models.Document{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		return nil
	case w.delete:
		return where.Delete(&models.Document{}).Error
	case !read:
		return upsert(tx, w.ref.collection, w.ref.key, w.data)
	case version == 0:
		// read as absent: creating it must not clobber a concurrent creator
		doc := models.Document{Collection: w.ref.collection, Key: w.ref.key, Version: 1, Data: datatypes.JSON(w.data)}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&doc)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		return nil
	default:
		res := tx.Model(&models.Document{}).
			Where("collection = ? AND key = ? AND version = ?", w.ref.collection, w.ref.key, version).
			Updates(map[string]any{
				"data":       datatypes.JSON(w.data),
				"version":    gorm.Expr("version + 1"),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		return nil
	}
}

func (s *PostgresStore) SubscribeDoc(collection, key string, fn func(Snapshot)) Unsubscribe {
	return s.hub.Watch(collection, key, func(ctx context.Context) {
		snap, err := s.Get(ctx, collection, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			log.Printf("⚠️ [Store] refresh %s/%s: %v", collection, key, err)
			return
		}
		if ctx.Err() == nil {
			fn(snap)
		}
	})
}

func (s *PostgresStore) SubscribeQuery(q Query, fn func([]Snapshot)) Unsubscribe {
	return s.hub.Watch(q.Collection, "", func(ctx context.Context) {
		snaps, err := s.Query(ctx, q)
		if err != nil {
			log.Printf("⚠️ [Store] refresh query on %s: %v", q.Collection, err)
			return
		}
		if ctx.Err() == nil {
			fn(snaps)
		}
	})
}

func (s *PostgresStore) Close() error {
	s.hub.Close()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
