// Package render 把结果渲染为文本表格
package render

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hatlonely/ifxorm/kv/serializer"
	"github.com/hatlonely/ifxorm/kv/store"
	"github.com/hatlonely/ifxorm/log"
	"github.com/hatlonely/ifxorm/log/logger"
	"github.com/pkg/errors"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Table 带边框的表格，第一行是表头
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	return t.String()
}

type Options struct {
	Enable bool   `cfg:"enable"`
	Path   string `cfg:"path" def:".ifxorm/render.db"`

	Logger logger.Logger `cfg:"-"`
}

// Cache 渲染结果保存在本地 bbolt 文件中
type Cache struct {
	store  store.Store[string, string]
	logger logger.Logger
}

type CacheOption func(*Cache)

func WithLogger(l logger.Logger) CacheOption {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCacheWithOptions 未启用时返回 nil
func NewCacheWithOptions(options *Options) (*Cache, error) {
	if options == nil || !options.Enable {
		return nil, nil
	}
	s, err := store.NewStoreWithOptions[string, string](&store.Options{
		Type: "boltdb",
		BoltDB: store.BoltDBStoreOptions{
			DBPath:        options.Path,
			BucketName:    "render",
			KeySerializer: serializer.Options{Type: "json"},
			ValSerializer: serializer.Options{Type: "msgpack"},
			Timeout:       time.Second,
			NoSync:        true,
		},
	})
	if err != nil {
		return nil, errors.WithMessage(err, "open render cache failed")
	}
	return NewCache(s, WithLogger(options.Logger)), nil
}

func NewCache(s store.Store[string, string], opts ...CacheOption) *Cache {
	c := &Cache{store: s, logger: log.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key sha256(headers) + sha256(rows)
func Key(headers []string, rows [][]string) string {
	h := sha256.Sum256([]byte(strings.Join(headers, "\x1f")))
	lines := make([]string, len(rows))
	for i, row := range rows {
		lines[i] = strings.Join(row, "\x1f")
	}
	r := sha256.Sum256([]byte(strings.Join(lines, "\x1e")))
	return hex.EncodeToString(h[:]) + hex.EncodeToString(r[:])
}

// Render 有缓存时直接返回，否则渲染并写入缓存，写入失败不影响返回结果
func (c *Cache) Render(ctx context.Context, headers []string, rows [][]string) (string, error) {
	key := Key(headers, rows)
	s, err := c.store.Get(ctx, key)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, store.ErrKeyNotFound) {
		return "", errors.WithMessage(err, "render cache get failed")
	}
	s = Table(headers, rows)
	if err := c.store.Set(ctx, key, s); err != nil {
		c.logger.WarnContext(ctx, "render cache set failed", "rows", len(rows), "error", err)
	}
	return s, nil
}

func (c *Cache) Close() error {
	return c.store.Close()
}
