package model

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/hatlonely/ifxorm/log"
	"github.com/hatlonely/ifxorm/log/logger"
	"github.com/hatlonely/ifxorm/rdb"
	"github.com/pkg/errors"
)

// Registry 表名到模型的映射，每个连接一份。
// 手动注册的模型优先；其次是内存中已反射的模型；然后是快照；最后读取系统表
type Registry struct {
	mu           sync.RWMutex
	models       map[string]*Model
	introspector Introspector
	snapshots    *SnapshotStore
	logger       logger.Logger
}

type RegistryOption func(*Registry)

func WithSnapshotStore(s *SnapshotStore) RegistryOption {
	return func(r *Registry) { r.snapshots = s }
}

func WithLogger(l logger.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry introspector 为 nil 时只能使用手动注册的模型
func NewRegistry(introspector Introspector, opts ...RegistryOption) *Registry {
	r := &Registry{
		models:       map[string]*Model{},
		introspector: introspector,
		logger:       log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Register(m *Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[strings.ToLower(m.Table())] = m
}

// Lookup 只查内存，不做任何 I/O
func (r *Registry) Lookup(table string) (*Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[strings.ToLower(table)]
	return m, ok
}

func (r *Registry) Get(ctx context.Context, table string) (*Model, error) {
	if m, ok := r.Lookup(table); ok {
		return m, nil
	}

	if r.snapshots != nil {
		m, err := r.snapshots.Load(ctx, table)
		if err != nil {
			r.logger.WarnContext(ctx, "load model snapshot failed", "table", table, "error", err)
		}
		if m != nil {
			r.logger.DebugContext(ctx, "model loaded from snapshot", "table", table)
			return r.remember(m), nil
		}
	}

	m, err := r.reflect(ctx, table)
	if err != nil {
		return nil, err
	}
	if r.snapshots != nil {
		if err := r.snapshots.Save(ctx, m); err != nil {
			r.logger.WarnContext(ctx, "save model snapshot failed", "table", table, "error", err)
		}
	}
	return r.remember(m), nil
}

// Refresh 丢弃内存和快照中的模型，重新读取系统表
func (r *Registry) Refresh(ctx context.Context, table string) (*Model, error) {
	r.mu.Lock()
	delete(r.models, strings.ToLower(table))
	r.mu.Unlock()

	if r.snapshots != nil {
		if err := r.snapshots.Delete(ctx, table); err != nil {
			r.logger.WarnContext(ctx, "delete model snapshot failed", "table", table, "error", err)
		}
	}
	return r.Get(ctx, table)
}

// Tables 已知的表名，按字典序
func (r *Registry) Tables() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tables := make([]string, 0, len(r.models))
	for k := range r.models {
		tables = append(tables, k)
	}
	sort.Strings(tables)
	return tables
}

func (r *Registry) reflect(ctx context.Context, table string) (*Model, error) {
	if r.introspector == nil {
		return nil, errors.Wrapf(rdb.ErrTableNotFound, "table %s is not registered", table)
	}
	columns, err := r.introspector.DescribeTable(ctx, table)
	if err != nil {
		return nil, errors.WithMessagef(err, "describe table %s failed", table)
	}
	if len(columns) == 0 {
		return nil, errors.Wrapf(rdb.ErrTableNotFound, "table %s", table)
	}
	fks, err := r.introspector.DescribeForeignKeys(ctx, table)
	if err != nil {
		return nil, errors.WithMessagef(err, "describe foreign keys of %s failed", table)
	}
	r.logger.DebugContext(ctx, "model reflected", "table", table, "columns", len(columns), "foreignKeys", len(fks))
	return ModelFromColumns(strings.ToLower(table), columns, fks), nil
}

// remember 并发反射同一张表时保留先写入的模型
func (r *Registry) remember(m *Model) *Model {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(m.Table())
	if existing, ok := r.models[key]; ok {
		return existing
	}
	r.models[key] = m
	return m
}
