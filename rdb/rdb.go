package rdb

import (
	"context"
)

// Row 一行查询结果，列名统一为小写
type Row map[string]any

// Connection 数据库连接
//
// 事务语句 BEGIN WORK / COMMIT WORK / ROLLBACK WORK 也通过 Execute 发送，
// 实现必须保证这些语句落在同一个会话上，且不会在两条语句之间自动提交
type Connection interface {
	Execute(ctx context.Context, sql string) error
	ExecuteQuery(ctx context.Context, sql string) ([]Row, error)
}

// Clone 浅拷贝一行，用于缓存命中时返回互不影响的结果
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
