package store

import (
	"context"
	"time"

	"github.com/coocood/freecache"
	"github.com/hatlonely/ifxorm/kv/serializer"
	"github.com/pkg/errors"
)

type FreeCacheStoreOptions struct {
	// 缓存容量（字节），freecache 最小为 512KB
	Size int `cfg:"size" def:"33554432"`
	// 默认过期时间，0 表示不过期
	DefaultTTL    time.Duration      `cfg:"defaultTTL"`
	KeySerializer serializer.Options `cfg:"keySerializer"`
	ValSerializer serializer.Options `cfg:"valSerializer"`
}

// FreeCacheStore 有容量上限的进程内存储，写满后按近似 LRU 淘汰
type FreeCacheStore[K, V any] struct {
	cache           *freecache.Cache
	size            int
	defaultTTL      time.Duration
	keySerializer   serializer.Serializer[K, []byte]
	valueSerializer serializer.Serializer[V, []byte]
}

func NewFreeCacheStoreWithOptions[K, V any](options *FreeCacheStoreOptions) (*FreeCacheStore[K, V], error) {
	keySerializer, err := serializer.NewByteSerializerWithOptions[K](&options.KeySerializer)
	if err != nil {
		return nil, errors.WithMessage(err, "key serializer")
	}
	valueSerializer, err := serializer.NewByteSerializerWithOptions[V](&options.ValSerializer)
	if err != nil {
		return nil, errors.WithMessage(err, "value serializer")
	}

	return &FreeCacheStore[K, V]{
		cache:           freecache.NewCache(options.Size),
		size:            options.Size,
		defaultTTL:      options.DefaultTTL,
		keySerializer:   keySerializer,
		valueSerializer: valueSerializer,
	}, nil
}

func (s *FreeCacheStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
	options := applySetOptions(opts)

	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return errors.Wrap(err, "marshal key failed")
	}
	valueBytes, err := s.valueSerializer.Serialize(value)
	if err != nil {
		return errors.Wrap(err, "marshal value failed")
	}

	expiration := options.Expiration
	if expiration == 0 {
		expiration = s.defaultTTL
	}
	// freecache 的过期时间以秒为单位，不足一秒按一秒处理
	expireSeconds := int(expiration / time.Second)
	if expiration > 0 && expireSeconds == 0 {
		expireSeconds = 1
	}
	if err := s.cache.Set(keyBytes, valueBytes, expireSeconds); err != nil {
		if errors.Is(err, freecache.ErrLargeEntry) || errors.Is(err, freecache.ErrLargeKey) {
			return errors.Wrapf(ErrEntryTooLarge, "freecache set failed. size: %d, cache size: %d", len(keyBytes)+len(valueBytes), s.size)
		}
		return errors.Wrap(err, "freecache set failed")
	}
	return nil
}

func (s *FreeCacheStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return zero, errors.Wrap(err, "marshal key failed")
	}

	valueBytes, err := s.cache.Get(keyBytes)
	if err != nil {
		return zero, ErrKeyNotFound
	}

	value, err := s.valueSerializer.Deserialize(valueBytes)
	if err != nil {
		return zero, errors.Wrap(err, "unmarshal value failed")
	}
	return value, nil
}

func (s *FreeCacheStore[K, V]) Del(ctx context.Context, key K) error {
	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return errors.Wrap(err, "marshal key failed")
	}

	s.cache.Del(keyBytes)
	return nil
}

// EntryCount 当前缓存的键数量
func (s *FreeCacheStore[K, V]) EntryCount() int64 {
	return s.cache.EntryCount()
}

func (s *FreeCacheStore[K, V]) Close() error {
	s.cache.Clear()
	return nil
}
