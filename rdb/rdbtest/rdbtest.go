// Package rdbtest 提供记录所有语句的 rdb.Connection，用于测试 SQL 生成和事务顺序
package rdbtest

import (
	"context"
	"strings"
	"sync"

	"github.com/hatlonely/ifxorm/rdb"
)

type response struct {
	contains string
	rows     []rdb.Row
	err      error
}

// Conn 记录收到的每一条语句，按注册顺序匹配查询结果
type Conn struct {
	mu         sync.Mutex
	statements []string
	queries    []string
	responses  []response
	failures   []response
}

func New() *Conn {
	return &Conn{}
}

// Respond 查询语句包含 contains 时返回 rows，先注册的优先
func (c *Conn) Respond(contains string, rows ...rdb.Row) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, response{contains: contains, rows: rows})
	return c
}

// FailQuery 查询语句包含 contains 时返回 err
func (c *Conn) FailQuery(contains string, err error) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, response{contains: contains, err: err})
	return c
}

// FailExec Execute 的语句包含 contains 时返回 err
func (c *Conn) FailExec(contains string, err error) *Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, response{contains: contains, err: err})
	return c
}

func (c *Conn) Execute(ctx context.Context, sql string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.statements = append(c.statements, sql)
	for _, f := range c.failures {
		if strings.Contains(sql, f.contains) {
			return f.err
		}
	}
	return nil
}

func (c *Conn) ExecuteQuery(ctx context.Context, sql string) ([]rdb.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.statements = append(c.statements, sql)
	c.queries = append(c.queries, sql)
	for _, r := range c.responses {
		if strings.Contains(sql, r.contains) {
			if r.err != nil {
				return nil, r.err
			}
			rows := make([]rdb.Row, len(r.rows))
			for i, row := range r.rows {
				rows[i] = row.Clone()
			}
			return rows, nil
		}
	}
	return nil, nil
}

// Statements 按顺序返回收到的所有语句
func (c *Conn) Statements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.statements...)
}

// Queries 只包含 ExecuteQuery 收到的语句
func (c *Conn) Queries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queries...)
}

func (c *Conn) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statements = nil
	c.queries = nil
}
