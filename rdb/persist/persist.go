// Package persist 写操作：每个操作都需要显式确认，语句包在 BEGIN WORK / COMMIT WORK 之间，
// 任何一步失败都会发送 ROLLBACK WORK
package persist

import (
	"context"
	"sort"
	"strings"

	"github.com/hatlonely/ifxorm/log"
	"github.com/hatlonely/ifxorm/log/logger"
	"github.com/hatlonely/ifxorm/rdb"
	"github.com/hatlonely/ifxorm/rdb/expr"
	"github.com/hatlonely/ifxorm/rdb/model"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	BeginWork    = "BEGIN WORK"
	CommitWork   = "COMMIT WORK"
	RollbackWork = "ROLLBACK WORK"
)

type Executor struct {
	conn   rdb.Connection
	logger logger.Logger
	tracer trace.Tracer
}

type Option func(*Executor)

func WithLogger(l logger.Logger) Option {
	return func(x *Executor) {
		if l != nil {
			x.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(x *Executor) { x.tracer = t }
}

func New(conn rdb.Connection, opts ...Option) *Executor {
	x := &Executor{
		conn:   conn,
		logger: log.Default(),
		tracer: otel.Tracer("ifxorm/persist"),
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Add 顺序：确认、BeforeAdd 钩子、非空校验，然后在事务中执行一条 INSERT
func (x *Executor) Add(ctx context.Context, e *model.Entity, confirm bool) error {
	m := e.Model()
	if !confirm {
		return errors.Wrapf(rdb.ErrConfirmationRequired, "add %s", m.Table())
	}
	if hook := m.Hooks().BeforeAdd; hook != nil {
		if err := hook(ctx, e); err != nil {
			return errors.WithMessagef(err, "before add hook on %s", m.Table())
		}
	}
	if err := e.Validate(); err != nil {
		return err
	}

	stmt := InsertSQL(e)
	if err := x.transaction(ctx, "add", m.Table(), []string{stmt}); err != nil {
		return err
	}
	x.logger.InfoContext(ctx, "record added", "table", m.Table(), "sql", stmt)
	return nil
}

// BulkAdd 所有合法对象的 INSERT 共用一个事务。校验失败的对象被跳过并记录日志，
// 提交后以 *rdb.ValidationErrors 返回；全部不合法时不开启事务
func (x *Executor) BulkAdd(ctx context.Context, m *model.Model, entities []*model.Entity, confirm bool) error {
	if !confirm {
		return errors.Wrapf(rdb.ErrConfirmationRequired, "bulk add %s", m.Table())
	}
	if len(entities) == 0 {
		return nil
	}

	var (
		statements []string
		invalid    = &rdb.ValidationErrors{Table: m.Table()}
	)
	for i, e := range entities {
		err := validateFor(m, e)
		if err != nil {
			x.logger.WarnContext(ctx, "skip invalid record", "table", m.Table(), "index", i, "error", err.Error())
			invalid.Index = append(invalid.Index, i)
			invalid.Errors = append(invalid.Errors, err)
			continue
		}
		statements = append(statements, InsertSQL(e))
	}

	if len(statements) > 0 {
		if err := x.transaction(ctx, "bulk add", m.Table(), statements); err != nil {
			return err
		}
		x.logger.InfoContext(ctx, "records added", "table", m.Table(), "count", len(statements))
	}
	if len(invalid.Errors) > 0 {
		return invalid
	}
	return nil
}

func validateFor(m *model.Model, e *model.Entity) error {
	if e == nil {
		return errors.New("nil record")
	}
	if e.Model() != m && !strings.EqualFold(e.Model().Table(), m.Table()) {
		return errors.Errorf("record of %s cannot be added to %s", e.Model().Table(), m.Table())
	}
	return e.Validate()
}

// Update SET 所有非空字段；where 不能为空。AfterUpdate 钩子在 COMMIT WORK 之后调用
func (x *Executor) Update(ctx context.Context, e *model.Entity, where map[string]any, confirm bool) error {
	m := e.Model()
	if !confirm {
		return errors.Wrapf(rdb.ErrConfirmationRequired, "update %s", m.Table())
	}
	if len(where) == 0 {
		return errors.Wrapf(rdb.ErrEmptyPredicate, "update %s", m.Table())
	}
	stmt, err := UpdateSQL(e, where)
	if err != nil {
		return err
	}

	if err := x.transaction(ctx, "update", m.Table(), []string{stmt}); err != nil {
		return err
	}
	x.logger.InfoContext(ctx, "record updated", "table", m.Table(), "where", WhereClause(where))

	if hook := m.Hooks().AfterUpdate; hook != nil {
		if err := hook(ctx, e); err != nil {
			return errors.WithMessagef(err, "after update hook on %s", m.Table())
		}
	}
	return nil
}

func (x *Executor) Delete(ctx context.Context, m *model.Model, where map[string]any, confirm bool) error {
	if !confirm {
		return errors.Wrapf(rdb.ErrConfirmationRequired, "delete %s", m.Table())
	}
	if len(where) == 0 {
		return errors.Wrapf(rdb.ErrEmptyPredicate, "delete %s", m.Table())
	}

	stmt := DeleteSQL(m, where)
	if err := x.transaction(ctx, "delete", m.Table(), []string{stmt}); err != nil {
		return err
	}
	x.logger.InfoContext(ctx, "record deleted", "table", m.Table(), "where", WhereClause(where))
	return nil
}

// CreateTable 执行模型的建表语句，不使用事务
func (x *Executor) CreateTable(ctx context.Context, m *model.Model) error {
	stmt := m.CreateTableSQL()
	ctx, span := x.tracer.Start(ctx, "persist.create_table", trace.WithAttributes(
		attribute.String("db.sql.table", m.Table()),
	))
	defer span.End()

	if err := x.conn.Execute(ctx, stmt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		x.logger.ErrorContext(ctx, "create table failed", "table", m.Table(), "sql", stmt, "error", err.Error())
		return &rdb.ExecutionError{Op: "create table", Table: m.Table(), SQL: stmt, Err: err}
	}
	span.SetStatus(codes.Ok, "")
	x.logger.InfoContext(ctx, "table created", "table", m.Table())
	return nil
}

// transaction BEGIN WORK、各条语句、COMMIT WORK 依次执行，任一步失败时发送 ROLLBACK WORK，
// 回滚本身的错误记录在 ExecutionError.RollbackErr 中
func (x *Executor) transaction(ctx context.Context, op, table string, statements []string) error {
	ctx, span := x.tracer.Start(ctx, "persist."+strings.ReplaceAll(op, " ", "_"), trace.WithAttributes(
		attribute.String("db.sql.table", table),
		attribute.Int("db.statements", len(statements)),
	))
	defer span.End()

	current := BeginWork
	err := x.conn.Execute(ctx, BeginWork)
	for i := 0; err == nil && i < len(statements); i++ {
		current = statements[i]
		err = x.conn.Execute(ctx, current)
	}
	if err == nil {
		current = CommitWork
		err = x.conn.Execute(ctx, CommitWork)
	}
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return nil
	}

	execErr := &rdb.ExecutionError{Op: op, Table: table, SQL: current, Err: err}
	if rbErr := x.conn.Execute(ctx, RollbackWork); rbErr != nil {
		execErr.RollbackErr = rbErr
	}
	span.RecordError(execErr)
	span.SetStatus(codes.Error, execErr.Error())
	x.logger.ErrorContext(ctx, "statement failed, rolled back", "table", table, "sql", current, "error", execErr.Error())
	return execErr
}

// InsertSQL 按字段顺序插入，值为空的自增列不出现在列表中，由数据库分配
func InsertSQL(e *model.Entity) string {
	m := e.Model()
	var columns, values []string
	for _, f := range m.Fields() {
		v := e.Get(f.Name)
		if v == nil && f.AutoIncrement {
			continue
		}
		columns = append(columns, f.Name)
		values = append(values, expr.QuoteValue(v))
	}
	return "INSERT INTO " + m.Table() + " (" + strings.Join(columns, ", ") + ") VALUES (" + strings.Join(values, ", ") + ")"
}

// UpdateSQL 没有任何非空字段时返回错误
func UpdateSQL(e *model.Entity, where map[string]any) (string, error) {
	m := e.Model()
	var sets []string
	for _, f := range m.Fields() {
		v := e.Get(f.Name)
		if v == nil {
			continue
		}
		sets = append(sets, f.Name+" = "+expr.QuoteValue(v))
	}
	if len(sets) == 0 {
		return "", errors.Errorf("update %s: no field to set", m.Table())
	}
	return "UPDATE " + m.Table() + " SET " + strings.Join(sets, ", ") + " WHERE " + WhereClause(where), nil
}

func DeleteSQL(m *model.Model, where map[string]any) string {
	return "DELETE FROM " + m.Table() + " WHERE " + WhereClause(where)
}

// WhereClause 按键名排序后以 AND 连接，nil 值渲染为 IS NULL
func WhereClause(where map[string]any) string {
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		if where[k] == nil {
			parts[i] = k + " IS NULL"
			continue
		}
		parts[i] = k + " = " + expr.QuoteValue(where[k])
	}
	return strings.Join(parts, " AND ")
}
