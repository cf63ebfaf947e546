package model

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// BeforeAddHook 插入前调用，返回错误时放弃插入
type BeforeAddHook func(ctx context.Context, e *Entity) error

// AfterUpdateHook 更新提交后调用
type AfterUpdateHook func(ctx context.Context, e *Entity) error

type Hooks struct {
	BeforeAdd   BeforeAddHook
	AfterUpdate AfterUpdateHook
}

// Model 一张表的记录类型：有序字段和关系
type Model struct {
	table     string
	fields    []Field
	index     map[string]int
	relations []Relation
	hooks     Hooks
}

// NewModel 字段名重复时后者覆盖前者的定义，位置保持不变
func NewModel(table string, fields ...Field) *Model {
	m := &Model{table: table, index: map[string]int{}}
	for _, f := range fields {
		if i, ok := m.index[f.Name]; ok {
			m.fields[i] = f
			continue
		}
		m.index[f.Name] = len(m.fields)
		m.fields = append(m.fields, f)
	}
	return m
}

func (m *Model) Table() string { return m.table }

// Fields 按声明顺序返回字段
func (m *Model) Fields() []Field {
	return append([]Field(nil), m.fields...)
}

func (m *Model) Field(name string) (Field, bool) {
	i, ok := m.index[name]
	if !ok {
		return Field{}, false
	}
	return m.fields[i], true
}

func (m *Model) HasField(name string) bool {
	_, ok := m.index[name]
	return ok
}

func (m *Model) FieldNames() []string {
	names := make([]string, len(m.fields))
	for i, f := range m.fields {
		names[i] = f.Name
	}
	return names
}

// PrimaryKey 主键字段名，可能为空或多个
func (m *Model) PrimaryKey() []string {
	var keys []string
	for _, f := range m.fields {
		if f.PrimaryKey {
			keys = append(keys, f.Name)
		}
	}
	return keys
}

func (m *Model) SetHooks(hooks Hooks) *Model {
	m.hooks = hooks
	return m
}

func (m *Model) Hooks() Hooks {
	return m.hooks
}

// Relations 按添加顺序返回
func (m *Model) Relations() []Relation {
	return append([]Relation(nil), m.relations...)
}

func (m *Model) Relation(name string) (Relation, bool) {
	for _, r := range m.relations {
		if r.Name == name {
			return r, true
		}
	}
	return Relation{}, false
}

// AddRelation 同名关系会被替换
func (m *Model) AddRelation(r Relation) *Model {
	for i := range m.relations {
		if m.relations[i].Name == r.Name {
			m.relations[i] = r
			return m
		}
	}
	m.relations = append(m.relations, r)
	return m
}

// DeclareRelation 在没有外键信息时按命名约定推断关系的键：
//   - 本表有 <name>_id 字段：多对一，指向对方表的 id
//   - 否则本表有 id 字段：一对多，对方表的 <本表名去掉末尾 s>_id 指向本表 id
func (m *Model) DeclareRelation(name, table string) error {
	switch {
	case m.HasField(name + "_id"):
		m.AddRelation(Relation{
			Name:      name,
			Table:     table,
			Kind:      ManyToOne,
			LocalKey:  name + "_id",
			RemoteKey: "id",
		})
	case m.HasField("id"):
		m.AddRelation(Relation{
			Name:      name,
			Table:     table,
			Kind:      OneToMany,
			LocalKey:  "id",
			RemoteKey: singular(m.table) + "_id",
		})
	default:
		return errors.Errorf("cannot infer keys for relation %s on %s: neither id nor %s_id is declared", name, m.table, name)
	}
	return nil
}

func singular(table string) string {
	if len(table) > 1 {
		return table[:len(table)-1]
	}
	return table
}

// NewEntity 创建实体，values 中的键必须是已声明的字段
func (m *Model) NewEntity(values map[string]any) (*Entity, error) {
	e := newEntity(m)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := e.Set(k, values[k]); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// FromRow 把一行结果映射为实体，字段值宽松转换，非字段列作为附加列保存
func (m *Model) FromRow(row map[string]any) *Entity {
	e := newEntity(m)
	for k, v := range row {
		if f, ok := m.Field(k); ok {
			e.values[k] = f.normalizeLenient(v)
			continue
		}
		e.SetExtra(k, v)
	}
	return e
}

// DescribeHeaders Describe 每列的含义
var DescribeHeaders = []string{"Field", "Type", "PK", "Nullable"}

// Describe 每个字段一行：名字、类型、是否主键、是否可空
func (m *Model) Describe() [][]string {
	rows := make([][]string, len(m.fields))
	for i, f := range m.fields {
		rows[i] = []string{f.Name, f.Type.String(), strconv.FormatBool(f.PrimaryKey), strconv.FormatBool(f.Nullable)}
	}
	return rows
}

// CreateTableSQL 根据声明的字段生成建表语句
func (m *Model) CreateTableSQL() string {
	parts := make([]string, len(m.fields))
	for i, f := range m.fields {
		def := f.Name + " " + sqlType(f)
		if !f.Nullable {
			def += " NOT NULL"
		}
		parts[i] = def
	}
	if pk := m.PrimaryKey(); len(pk) > 0 {
		parts = append(parts, "PRIMARY KEY ("+strings.Join(pk, ", ")+")")
	}
	return "CREATE TABLE " + m.table + " (" + strings.Join(parts, ", ") + ")"
}

func sqlType(f Field) string {
	switch f.Type {
	case Integer:
		if f.AutoIncrement {
			return "SERIAL"
		}
		return "INT"
	case Float:
		return "FLOAT"
	case Boolean:
		return "BOOLEAN"
	}
	return "VARCHAR(255)"
}
