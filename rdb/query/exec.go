package query

import (
	"context"
	"fmt"

	"github.com/hatlonely/ifxorm/rdb"
	"github.com/hatlonely/ifxorm/rdb/cache"
	"github.com/hatlonely/ifxorm/rdb/model"
	"github.com/pkg/errors"
)

// All 执行查询。缓存开启时先查缓存，未命中再访问连接并写入原始行；
// 每次都从原始行重新映射实体，调用方拿到的实体互不影响
func (b *Builder) All(ctx context.Context) (*Result, error) {
	sql, err := b.Compile()
	if err != nil {
		return nil, err
	}
	rows, err := b.fetch(ctx, sql)
	if err != nil {
		return nil, err
	}

	entities := make([]*model.Entity, len(rows))
	for i, row := range rows {
		entities[i] = b.mapRow(row)
	}
	if err := b.preload(ctx, entities); err != nil {
		return nil, err
	}
	headers := b.headers()
	if headers == nil {
		headers = rowHeaders(rows)
	}
	return newResult(entities, headers, b.renderCache), nil
}

// First 等价于 Limit(1) 后 All，没有结果时第二个返回值为 false
func (b *Builder) First(ctx context.Context) (*model.Entity, bool, error) {
	result, err := b.Limit(1).All(ctx)
	if err != nil {
		return nil, false, err
	}
	return result.First()
}

// Count 只应用 Filter 的条件，见 CountSQL
func (b *Builder) Count(ctx context.Context) (int64, error) {
	sql, err := b.CountSQL()
	if err != nil {
		return 0, err
	}
	rows, err := b.query(ctx, sql)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	v, err := model.IntField("count").Normalize(rows[0]["count"])
	if err != nil {
		return 0, errors.WithMessage(err, "unexpected count result")
	}
	if v == nil {
		return 0, nil
	}
	return v.(int64), nil
}

func (b *Builder) Exists(ctx context.Context) (bool, error) {
	sql, err := b.ExistsSQL()
	if err != nil {
		return false, err
	}
	rows, err := b.query(ctx, sql)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// CreateTempTable CREATE TEMP TABLE name AS (<compiled>) WITH [NO] LOG，返回新表重新反射得到的模型
func (b *Builder) CreateTempTable(ctx context.Context, name string, withLog bool) (*model.Model, error) {
	sql, err := b.Compile()
	if err != nil {
		return nil, err
	}
	logging := "NO LOG"
	if withLog {
		logging = "LOG"
	}
	stmt := "CREATE TEMP TABLE " + name + " AS (" + sql + ") WITH " + logging

	b.logger.DebugContext(ctx, "create temp table", "table", name, "sql", stmt)
	if err := b.conn.Execute(ctx, stmt); err != nil {
		return nil, &rdb.ExecutionError{Op: "create temp table", Table: name, SQL: stmt, Err: err}
	}
	if b.registry == nil {
		return nil, errors.Errorf("temp table %s created but no registry to reflect it", name)
	}
	return b.registry.Refresh(ctx, name)
}

func (b *Builder) fetch(ctx context.Context, sql string) ([]rdb.Row, error) {
	if b.cache == nil || b.live {
		return b.query(ctx, sql)
	}
	rows, hit, err := b.cache.Fetch(ctx, sql, b.ttl, func(ctx context.Context) ([]rdb.Row, error) {
		return b.query(ctx, sql)
	})
	if err != nil {
		return nil, err
	}
	if hit {
		b.logger.DebugContext(ctx, "result cache hit", "table", b.model.Table(), "key", cache.Key(sql))
	} else {
		b.logger.DebugContext(ctx, "result cache miss", "table", b.model.Table(), "key", cache.Key(sql))
	}
	return rows, nil
}

func (b *Builder) query(ctx context.Context, sql string) ([]rdb.Row, error) {
	b.logger.DebugContext(ctx, "execute query", "table", b.model.Table(), "sql", sql)
	rows, err := b.conn.ExecuteQuery(ctx, sql)
	if err != nil {
		return nil, errors.WithMessagef(err, "query %s failed", b.model.Table())
	}
	return rows, nil
}

func (b *Builder) mapRow(row rdb.Row) *model.Entity {
	if len(b.joins) == 0 || len(b.selects) > 0 {
		return b.model.FromRow(row)
	}
	values := make(map[string]any, len(row))
	for k, v := range row {
		values[b.columnName(k)] = v
	}
	return b.model.FromRow(values)
}

// preload 每个关系只执行一次 IN 查询，按关联键分组后挂到实体上，没有匹配时为空列表
func (b *Builder) preload(ctx context.Context, entities []*model.Entity) error {
	if len(b.preloads) == 0 || len(entities) == 0 {
		return nil
	}
	for _, name := range b.preloads {
		relation, ok := b.model.Relation(name)
		if !ok {
			return errors.Wrapf(rdb.ErrUnknownRelation, "%s has no relation %s", b.model.Table(), name)
		}
		if b.registry == nil {
			return errors.Errorf("preload %s: no registry to resolve %s", name, relation.Table)
		}
		target, err := b.registry.Get(ctx, relation.Table)
		if err != nil {
			return errors.WithMessagef(err, "preload %s", name)
		}

		var keys []any
		seen := map[string]bool{}
		for _, e := range entities {
			v := e.Get(relation.LocalKey)
			if v == nil || seen[keyOf(v)] {
				continue
			}
			seen[keyOf(v)] = true
			keys = append(keys, v)
		}

		groups := map[string][]*model.Entity{}
		if len(keys) > 0 {
			sub := New(b.conn, target,
				WithRegistry(b.registry),
				WithCache(b.cache),
				WithLogger(b.logger),
				WithTTL(b.ttl),
			)
			if b.live {
				sub.Live()
			}
			related, err := sub.FilterIn(relation.RemoteKey, keys...).All(ctx)
			if err != nil {
				return errors.WithMessagef(err, "preload %s", name)
			}
			for _, r := range related.Entities() {
				k := keyOf(r.Get(relation.RemoteKey))
				groups[k] = append(groups[k], r)
			}
		}

		for _, e := range entities {
			v := e.Get(relation.LocalKey)
			if v == nil {
				e.SetRelated(name, nil)
				continue
			}
			e.SetRelated(name, groups[keyOf(v)])
		}
	}
	return nil
}

// keyOf 关联键两侧的类型可能不同（例如 int64 与 string），按文本比较
func keyOf(v any) string {
	return fmt.Sprint(v)
}
