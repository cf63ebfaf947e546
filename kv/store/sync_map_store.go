package store

import (
	"context"
	"sync"
	"time"
)

type syncMapItem[V any] struct {
	value    V
	expireAt time.Time
}

// SyncMapStore 进程内无容量上限的存储，过期的键在读取时清理
type SyncMapStore[K comparable, V any] struct {
	m   sync.Map
	now func() time.Time
}

func NewSyncMapStore[K comparable, V any]() *SyncMapStore[K, V] {
	return &SyncMapStore[K, V]{now: time.Now}
}

func (s *SyncMapStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
	options := applySetOptions(opts)

	item := &syncMapItem[V]{value: value}
	if options.Expiration > 0 {
		item.expireAt = s.now().Add(options.Expiration)
	}
	s.m.Store(key, item)
	return nil
}

func (s *SyncMapStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V
	v, ok := s.m.Load(key)
	if !ok {
		return zero, ErrKeyNotFound
	}
	item := v.(*syncMapItem[V])
	if !item.expireAt.IsZero() && !s.now().Before(item.expireAt) {
		s.m.CompareAndDelete(key, v)
		return zero, ErrKeyNotFound
	}
	return item.value, nil
}

func (s *SyncMapStore[K, V]) Del(ctx context.Context, key K) error {
	s.m.Delete(key)
	return nil
}

func (s *SyncMapStore[K, V]) Close() error {
	s.m.Clear()
	return nil
}
