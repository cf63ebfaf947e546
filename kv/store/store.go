package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var ErrKeyNotFound = errors.New("key not found")

// ErrEntryTooLarge 后端拒绝超过单条上限的值，例如 freecache 的单条上限为容量的 1/1024
var ErrEntryTooLarge = errors.New("entry too large")

// setOptions 用于设置 KV 数据时的选项
type setOptions struct {
	Expiration time.Duration
}

// SetOption Set 的可选参数
type SetOption func(*setOptions)

// WithExpiration 设置键的过期时间，0 表示使用 store 的默认值
func WithExpiration(expiration time.Duration) SetOption {
	return func(options *setOptions) {
		options.Expiration = expiration
	}
}

func applySetOptions(opts []SetOption) *setOptions {
	options := &setOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

type Store[K, V any] interface {
	// Set 设置键值对
	Set(ctx context.Context, key K, value V, opts ...SetOption) error
	// Get 获取键对应的值，键不存在时返回 ErrKeyNotFound
	Get(ctx context.Context, key K) (V, error)
	// Del 删除键，键不存在时也返回成功
	Del(ctx context.Context, key K) error
	Close() error
}

type Options struct {
	// memory | freecache | redis | boltdb
	Type string `cfg:"type" def:"freecache" validate:"oneof=memory freecache redis boltdb"`

	FreeCache FreeCacheStoreOptions `cfg:"freecache"`
	Redis     RedisStoreOptions     `cfg:"redis"`
	BoltDB    BoltDBStoreOptions    `cfg:"boltdb"`

	// 非空时为 store 增加指标和追踪
	Observable *ObservableStoreOptions `cfg:"observable"`
}

func NewStoreWithOptions[K comparable, V any](options *Options) (Store[K, V], error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}

	var store Store[K, V]
	var err error
	switch options.Type {
	case "memory":
		store = NewSyncMapStore[K, V]()
	case "freecache":
		store, err = NewFreeCacheStoreWithOptions[K, V](&options.FreeCache)
	case "redis":
		store, err = NewRedisStoreWithOptions[K, V](&options.Redis)
	case "boltdb":
		store, err = NewBoltDBStoreWithOptions[K, V](&options.BoltDB)
	default:
		return nil, errors.Errorf("unsupported store type %q", options.Type)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "new %s store failed", options.Type)
	}

	if options.Observable != nil {
		return NewObservableStore[K, V](store, options.Observable), nil
	}
	return store, nil
}
