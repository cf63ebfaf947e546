package model

import (
	"context"
	"sort"
	"strings"
)

// ColumnInfo syscolumns 中的一列
type ColumnInfo struct {
	Name string
	// Type 类型名，例如 INTEGER、VARCHAR，可以为空，此时由 ColType 推断
	Type string
	// ColType syscolumns.coltype 原值，低 8 位是类型编码，0x100 位表示 NOT NULL
	ColType    int
	Length     int
	Position   int
	PrimaryKey bool
}

// Introspector 读取数据库中的表结构
type Introspector interface {
	DescribeTable(ctx context.Context, table string) ([]ColumnInfo, error)
	DescribeForeignKeys(ctx context.Context, table string) ([]FKInfo, error)
}

const notNullBit = 0x100

// Informix coltype 类型编码
const (
	colChar       = 0
	colSmallint   = 1
	colInteger    = 2
	colFloat      = 3
	colSmallfloat = 4
	colDecimal    = 5
	colSerial     = 6
	colDate       = 7
	colMoney      = 8
	colDatetime   = 10
	colVarchar    = 13
	colInterval   = 14
	colNchar      = 15
	colNvarchar   = 16
	colInt8       = 17
	colSerial8    = 18
	colLvarchar   = 40
	colBoolean    = 45
	colBigint     = 52
	colBigserial  = 53
)

var colTypeNames = map[int]string{
	colChar:       "CHAR",
	colSmallint:   "SMALLINT",
	colInteger:    "INTEGER",
	colFloat:      "FLOAT",
	colSmallfloat: "SMALLFLOAT",
	colDecimal:    "DECIMAL",
	colSerial:     "SERIAL",
	colDate:       "DATE",
	colMoney:      "MONEY",
	colDatetime:   "DATETIME",
	colVarchar:    "VARCHAR",
	colInterval:   "INTERVAL",
	colNchar:      "NCHAR",
	colNvarchar:   "NVARCHAR",
	colInt8:       "INT8",
	colSerial8:    "SERIAL8",
	colLvarchar:   "LVARCHAR",
	colBoolean:    "BOOLEAN",
	colBigint:     "BIGINT",
	colBigserial:  "BIGSERIAL",
}

func (c ColumnInfo) baseType() int {
	return c.ColType & 0xFF
}

// TypeName 优先使用 Type，否则按 coltype 编码得到类型名
func (c ColumnInfo) TypeName() string {
	if c.Type != "" {
		return strings.ToUpper(strings.TrimSpace(c.Type))
	}
	if name, ok := colTypeNames[c.baseType()]; ok {
		return name
	}
	return "UNKNOWN"
}

func (c ColumnInfo) Nullable() bool {
	return c.ColType&notNullBit == 0
}

func (c ColumnInfo) AutoIncrement() bool {
	switch c.TypeName() {
	case "SERIAL", "SERIAL8", "BIGSERIAL":
		return true
	}
	return false
}

// FieldType 整数类映射为 Integer，浮点和定点数映射为 Float，BOOLEAN 映射为 Boolean，其余为 Text
func (c ColumnInfo) FieldType() FieldType {
	switch c.TypeName() {
	case "SMALLINT", "INTEGER", "INT", "SERIAL", "INT8", "SERIAL8", "BIGINT", "BIGSERIAL":
		return Integer
	case "FLOAT", "SMALLFLOAT", "REAL", "DECIMAL", "MONEY":
		return Float
	case "BOOLEAN":
		return Boolean
	}
	return Text
}

// Field 转换为字段定义
func (c ColumnInfo) Field() Field {
	f := Field{
		Name:          strings.ToLower(strings.TrimSpace(c.Name)),
		Type:          c.FieldType(),
		PrimaryKey:    c.PrimaryKey,
		Nullable:      c.Nullable() && !c.PrimaryKey,
		AutoIncrement: c.AutoIncrement(),
	}
	return f
}

// ModelFromColumns 按 Position 排序后的列构建模型，并根据外键推导关系
func ModelFromColumns(table string, columns []ColumnInfo, fks []FKInfo) *Model {
	sorted := append([]ColumnInfo(nil), columns...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })
	fields := make([]Field, len(sorted))
	for i, c := range sorted {
		fields[i] = c.Field()
	}
	m := NewModel(table, fields...)
	for _, r := range RelationsFromForeignKeys(table, fks) {
		m.AddRelation(r)
	}
	return m
}
