package store

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"github.com/hatlonely/ifxorm/kv/serializer"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

type BoltDBStoreOptions struct {
	// DBPath 是数据库文件的路径，文件不存在时自动创建。
	DBPath string `cfg:"dbPath" validate:"required"`

	// 桶名称，同一个文件可以按桶保存不同用途的数据。
	BucketName string `cfg:"bucketName" def:"default"`

	KeySerializer serializer.Options `cfg:"keySerializer"`
	ValSerializer serializer.Options `cfg:"valSerializer"`

	// Timeout 是获取文件锁的等待时间，为零时无限期等待。
	Timeout time.Duration `cfg:"timeout" def:"1s"`

	// 以只读模式打开数据库。
	ReadOnly bool `cfg:"readOnly"`

	// NoSync 跳过每次提交后的 fsync，适合可以重建的缓存数据。
	NoSync bool `cfg:"noSync"`

	// DefaultTTL 未指定 WithExpiration 时的过期时间，0 表示不过期
	DefaultTTL time.Duration `cfg:"defaultTTL"`
}

// BoltDBStore 本地文件存储。
// 每个值前有 8 字节大端的过期时间（UnixNano，0 表示不过期），过期的值在读取时视为不存在
type BoltDBStore[K, V any] struct {
	db            *bolt.DB
	keySerializer serializer.Serializer[K, []byte]
	valSerializer serializer.Serializer[V, []byte]
	bucketName    []byte
	defaultTTL    time.Duration
	now           func() time.Time
}

const deadlineSize = 8

func NewBoltDBStoreWithOptions[K, V any](options *BoltDBStoreOptions) (*BoltDBStore[K, V], error) {
	if options.DBPath == "" {
		return nil, errors.New("dbPath is required")
	}

	keySerializer, err := serializer.NewByteSerializerWithOptions[K](&options.KeySerializer)
	if err != nil {
		return nil, errors.WithMessage(err, "key serializer")
	}
	valSerializer, err := serializer.NewByteSerializerWithOptions[V](&options.ValSerializer)
	if err != nil {
		return nil, errors.WithMessage(err, "value serializer")
	}

	directory := filepath.Dir(options.DBPath)
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, errors.Wrapf(err, "os.MkdirAll failed. directory: %s", directory)
	}

	db, err := bolt.Open(options.DBPath, 0600, &bolt.Options{
		Timeout:  options.Timeout,
		ReadOnly: options.ReadOnly,
		NoSync:   options.NoSync,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "bolt.Open failed. dbPath: %s", options.DBPath)
	}

	bucketName := options.BucketName
	if bucketName == "" {
		bucketName = "default"
	}

	store := &BoltDBStore[K, V]{
		db:            db,
		keySerializer: keySerializer,
		valSerializer: valSerializer,
		bucketName:    []byte(bucketName),
		defaultTTL:    options.DefaultTTL,
		now:           time.Now,
	}

	if !options.ReadOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(store.bucketName)
			return err
		})
		if err != nil {
			db.Close()
			return nil, errors.Wrap(err, "create bucket failed")
		}
	}

	return store, nil
}

func (s *BoltDBStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
	options := applySetOptions(opts)

	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return errors.Wrap(err, "marshal key failed")
	}
	payload, err := s.valSerializer.Serialize(value)
	if err != nil {
		return errors.Wrap(err, "marshal value failed")
	}

	expiration := options.Expiration
	if expiration == 0 {
		expiration = s.defaultTTL
	}
	var deadline int64
	if expiration > 0 {
		deadline = s.now().Add(expiration).UnixNano()
	}
	valueBytes := make([]byte, deadlineSize+len(payload))
	binary.BigEndian.PutUint64(valueBytes, uint64(deadline))
	copy(valueBytes[deadlineSize:], payload)

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.bucketName)
		if bucket == nil {
			return errors.New("bucket not found")
		}
		return bucket.Put(keyBytes, valueBytes)
	})
}

func (s *BoltDBStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var zero V

	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return zero, errors.Wrap(err, "marshal key failed")
	}

	var valueBytes []byte
	err = s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.bucketName)
		if bucket == nil {
			return ErrKeyNotFound
		}
		data := bucket.Get(keyBytes)
		if len(data) < deadlineSize {
			return ErrKeyNotFound
		}
		deadline := int64(binary.BigEndian.Uint64(data))
		if deadline > 0 && s.now().UnixNano() >= deadline {
			return ErrKeyNotFound
		}
		// bbolt 返回的切片只在事务内有效
		valueBytes = make([]byte, len(data)-deadlineSize)
		copy(valueBytes, data[deadlineSize:])
		return nil
	})
	if err != nil {
		return zero, err
	}

	value, err := s.valSerializer.Deserialize(valueBytes)
	if err != nil {
		return zero, errors.Wrap(err, "unmarshal value failed")
	}
	return value, nil
}

func (s *BoltDBStore[K, V]) Del(ctx context.Context, key K) error {
	keyBytes, err := s.keySerializer.Serialize(key)
	if err != nil {
		return errors.Wrap(err, "marshal key failed")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(s.bucketName)
		if bucket == nil {
			return nil
		}
		return bucket.Delete(keyBytes)
	})
}

func (s *BoltDBStore[K, V]) Close() error {
	return s.db.Close()
}
