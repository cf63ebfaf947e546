// Package query 累积过滤、连接、投影、分组、排序和分页配置，编译为一条 Informix SELECT 语句并执行
//
// Builder 不是并发安全的，每个实例只应由一个调用方使用
package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/hatlonely/ifxorm/log"
	"github.com/hatlonely/ifxorm/log/logger"
	"github.com/hatlonely/ifxorm/rdb"
	"github.com/hatlonely/ifxorm/rdb/cache"
	"github.com/hatlonely/ifxorm/rdb/expr"
	"github.com/hatlonely/ifxorm/rdb/model"
	"github.com/hatlonely/ifxorm/rdb/render"
	"github.com/pkg/errors"
)

// DefaultAlias 主表别名
const DefaultAlias Alias = "t1"

// Alias 表或子查询在语句中的别名
type Alias string

// T 第 n 个别名，T(1) 为 t1
func T(n int) Alias {
	return Alias(fmt.Sprintf("t%d", n))
}

func (a Alias) String() string { return string(a) }

// Col 带别名的列，例如 t2.id
func (a Alias) Col(name string) expr.Expression {
	return expr.Col(string(a) + "." + name)
}

// Pair 等值过滤 column = 'value'
type Pair struct {
	Column string
	Value  any
}

func Eq(column string, value any) Pair {
	return Pair{Column: column, Value: value}
}

type inPredicate struct {
	column string
	values []any
}

type Builder struct {
	conn        rdb.Connection
	model       *model.Model
	registry    *model.Registry
	cache       *cache.ResultCache
	renderCache *render.Cache
	logger      logger.Logger

	alias        Alias
	aliasSeq     int
	filters      []string
	inFilters    []inPredicate
	notInFilters []inPredicate
	joins        []join
	antiJoin     string
	selects      []string
	groupBy      []string
	having       string
	distinct     bool
	limit        int
	hasLimit     bool
	offset       int
	orderBy      []string
	rawSQL       string
	preloads     []string
	live         bool
	ttl          time.Duration

	// err 配置阶段记录的第一个错误，所有终结操作都会返回它
	err error
}

type Option func(*Builder)

func WithRegistry(r *model.Registry) Option {
	return func(b *Builder) { b.registry = r }
}

func WithCache(c *cache.ResultCache) Option {
	return func(b *Builder) { b.cache = c }
}

func WithRenderCache(c *render.Cache) Option {
	return func(b *Builder) { b.renderCache = c }
}

func WithLogger(l logger.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithTTL 本实例的缓存有效期，默认 60 秒
func WithTTL(ttl time.Duration) Option {
	return func(b *Builder) { b.ttl = ttl }
}

// WithAlias 替换主表别名
func WithAlias(a Alias) Option {
	return func(b *Builder) { b.alias = a }
}

// New m 为 nil 时只能配合 RawSQL 使用，行中的所有列都作为附加列，列名取自返回的行
func New(conn rdb.Connection, m *model.Model, opts ...Option) *Builder {
	if m == nil {
		m = model.NewModel("")
	}
	b := &Builder{
		conn:     conn,
		model:    m,
		logger:   log.Default(),
		alias:    DefaultAlias,
		aliasSeq: 1,
		ttl:      cache.DefaultTTL,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) Model() *model.Model { return b.model }

// Alias 主表别名
func (b *Builder) Alias() Alias { return b.alias }

// LastJoinAlias 最近一次 Join 分配的别名，没有 Join 时返回主表别名
func (b *Builder) LastJoinAlias() Alias {
	if len(b.joins) == 0 {
		return b.alias
	}
	return b.joins[len(b.joins)-1].alias
}

// Err 配置阶段记录的错误
func (b *Builder) Err() error { return b.err }

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Filter 多次调用之间是 AND 关系。参数可以是：
//   - string 或 expr.Expression：原样作为条件
//   - Pair：column = 'value'，单引号加倍转义，nil 生成 column IS NULL
//   - map[string]any：按键排序后逐个生成等值条件
func (b *Builder) Filter(predicates ...any) *Builder {
	for _, p := range predicates {
		switch v := p.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				b.filters = append(b.filters, v)
			}
		case expr.Expression:
			b.filters = append(b.filters, v.SQL())
		case Pair:
			b.filters = append(b.filters, equality(v.Column, v.Value))
		case map[string]any:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				b.filters = append(b.filters, equality(k, v[k]))
			}
		default:
			return b.fail(errors.Errorf("unsupported filter type %T", p))
		}
	}
	return b
}

// Where Filter(Eq(column, value))
func (b *Builder) Where(column string, value any) *Builder {
	return b.Filter(Pair{Column: column, Value: value})
}

func equality(column string, value any) string {
	if value == nil {
		return column + " IS NULL"
	}
	return column + " = " + expr.QuoteValue(value)
}

// FilterIn column IN ('v1', 'v2')，切片参数会被展开
func (b *Builder) FilterIn(column string, values ...any) *Builder {
	b.inFilters = append(b.inFilters, inPredicate{column: column, values: flatten(values)})
	return b
}

// NotIn column NOT IN ('v1', 'v2')
func (b *Builder) NotIn(column string, values ...any) *Builder {
	b.notInFilters = append(b.notInFilters, inPredicate{column: column, values: flatten(values)})
	return b
}

func flatten(values []any) []any {
	var out []any
	for _, v := range values {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
			for i := 0; i < rv.Len(); i++ {
				out = append(out, rv.Index(i).Interface())
			}
			continue
		}
		out = append(out, v)
	}
	return out
}

// Select 覆盖自动投影
func (b *Builder) Select(fields ...string) *Builder {
	b.selects = append(b.selects, fields...)
	return b
}

func (b *Builder) OrderBy(fields ...string) *Builder {
	b.orderBy = append(b.orderBy, fields...)
	return b
}

func (b *Builder) GroupBy(fields ...string) *Builder {
	b.groupBy = append(b.groupBy, fields...)
	return b
}

func (b *Builder) Having(condition string) *Builder {
	b.having = condition
	return b
}

func (b *Builder) Distinct() *Builder {
	b.distinct = true
	return b
}

func (b *Builder) Limit(n int) *Builder {
	if n < 0 {
		return b.fail(errors.Errorf("negative limit %d", n))
	}
	b.limit = n
	b.hasLimit = true
	return b
}

func (b *Builder) Offset(n int) *Builder {
	if n < 0 {
		return b.fail(errors.Errorf("negative offset %d", n))
	}
	b.offset = n
	return b
}

// RawSQL 设置后编译结果就是 sql，其他所有配置都被忽略
func (b *Builder) RawSQL(sql string) *Builder {
	b.rawSQL = sql
	return b
}

// Preload All 返回后为每个关系额外执行一次批量查询
func (b *Builder) Preload(relations ...string) *Builder {
	b.preloads = append(b.preloads, relations...)
	return b
}

// Live 永久关闭本实例的结果缓存
func (b *Builder) Live() *Builder {
	b.live = true
	return b
}

// TTL 本实例的缓存有效期
func (b *Builder) TTL(ttl time.Duration) *Builder {
	b.ttl = ttl
	return b
}
