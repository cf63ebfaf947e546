package model

import (
	"context"
	"strings"
	"time"

	"github.com/hatlonely/ifxorm/kv/serializer"
	"github.com/hatlonely/ifxorm/kv/store"
	"github.com/pkg/errors"
)

type SnapshotOptions struct {
	Enable bool   `cfg:"enable"`
	Path   string `cfg:"path" def:".ifxorm/models.db"`
	// MaxAge 快照的有效期，过期后重新读取系统表，0 表示一直有效
	MaxAge time.Duration `cfg:"maxAge"`
}

// Snapshot 反射得到的模型的可序列化形式，不包含钩子
type Snapshot struct {
	Table     string     `msgpack:"table"`
	Fields    []Field    `msgpack:"fields"`
	Relations []Relation `msgpack:"relations"`
	StoredAt  time.Time  `msgpack:"storedAt"`
}

func NewSnapshot(m *Model) *Snapshot {
	return &Snapshot{
		Table:     m.table,
		Fields:    m.Fields(),
		Relations: m.Relations(),
	}
}

func (s *Snapshot) Model() *Model {
	m := NewModel(s.Table, s.Fields...)
	for _, r := range s.Relations {
		m.AddRelation(r)
	}
	return m
}

// SnapshotStore 把模型保存在本地 bbolt 文件中，进程重启后无需再次读取系统表
type SnapshotStore struct {
	store store.Store[string, *Snapshot]
	now   func() time.Time
}

func NewSnapshotStoreWithOptions(options *SnapshotOptions) (*SnapshotStore, error) {
	if options == nil || !options.Enable {
		return nil, nil
	}
	s, err := store.NewStoreWithOptions[string, *Snapshot](&store.Options{
		Type: "boltdb",
		BoltDB: store.BoltDBStoreOptions{
			DBPath:        options.Path,
			BucketName:    "models",
			KeySerializer: serializer.Options{Type: "json"},
			ValSerializer: serializer.Options{Type: "msgpack"},
			Timeout:       time.Second,
			DefaultTTL:    options.MaxAge,
		},
	})
	if err != nil {
		return nil, errors.WithMessage(err, "open snapshot store failed")
	}
	return NewSnapshotStore(s), nil
}

func NewSnapshotStore(s store.Store[string, *Snapshot]) *SnapshotStore {
	return &SnapshotStore{store: s, now: time.Now}
}

// Load 不存在时返回 nil, nil
func (s *SnapshotStore) Load(ctx context.Context, table string) (*Model, error) {
	snapshot, err := s.store.Get(ctx, snapshotKey(table))
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "load snapshot %s failed", table)
	}
	if snapshot == nil {
		return nil, nil
	}
	return snapshot.Model(), nil
}

func (s *SnapshotStore) Save(ctx context.Context, m *Model) error {
	snapshot := NewSnapshot(m)
	snapshot.StoredAt = s.now()
	return errors.WithMessagef(s.store.Set(ctx, snapshotKey(m.table), snapshot), "save snapshot %s failed", m.table)
}

func (s *SnapshotStore) Delete(ctx context.Context, table string) error {
	return errors.WithMessagef(s.store.Del(ctx, snapshotKey(table)), "delete snapshot %s failed", table)
}

func (s *SnapshotStore) Close() error {
	return s.store.Close()
}

func snapshotKey(table string) string {
	return strings.ToLower(table)
}
