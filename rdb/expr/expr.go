// Package expr 构造比较片段，并把 Go 值格式化为 Informix SQL 字面量
package expr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Expression 列名、函数调用或原始 SQL 片段
type Expression struct {
	sql string
}

func Col(name string) Expression {
	return Expression{sql: name}
}

// Date DATE(name)
func Date(name string) Expression {
	return Expression{sql: "DATE(" + name + ")"}
}

func Raw(sql string) Expression {
	return Expression{sql: sql}
}

// Now 当前时间，Informix 的 CURRENT
func Now() Expression {
	return Expression{sql: "CURRENT"}
}

func (e Expression) SQL() string    { return e.sql }
func (e Expression) String() string { return e.sql }

func (e Expression) Eq(value any) string { return e.compare("=", value) }
func (e Expression) Ne(value any) string { return e.compare("<>", value) }
func (e Expression) Gt(value any) string { return e.compare(">", value) }
func (e Expression) Lt(value any) string { return e.compare("<", value) }
func (e Expression) Ge(value any) string { return e.compare(">=", value) }
func (e Expression) Le(value any) string { return e.compare("<=", value) }

func (e Expression) compare(op string, value any) string {
	return e.sql + " " + op + " " + Format(value)
}

// Column 显式的列引用，格式化时原样输出
type Column string

// LiteralValue 显式的字面量，格式化时总是加引号
type LiteralValue struct {
	Value any
}

func Literal(value any) LiteralValue {
	return LiteralValue{Value: value}
}

const datetimeLayout = "2006-01-02 15:04:05"

var (
	// 形如 t2.id 的字符串被当作列引用，字面量恰好是这种形状时需要用 Literal
	aliasColumnPattern = regexp.MustCompile(`^t[0-9]+\.[A-Za-z_][A-Za-z0-9_]*$`)

	isoLayouts = []string{
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
	}
)

// Datetime DATETIME(YYYY-MM-DD HH:MM:SS) YEAR TO SECOND
func Datetime(t time.Time) string {
	return "DATETIME(" + t.Format(datetimeLayout) + ") YEAR TO SECOND"
}

// Format 比较右侧的值
//
//	time.Time              -> DATETIME(...) YEAR TO SECOND
//	Expression / Column    -> 原样
//	"t2.id"                -> 原样（列引用）
//	"2024-01-31"           -> '2024-01-31'
//	"2024-01-31T10:00:00"  -> DATETIME(2024-01-31 10:00:00) YEAR TO SECOND
//	其他字符串             -> 引号包裹，单引号加倍
//	数字                   -> 十进制文本
//	bool                   -> 't' / 'f'
//	nil                    -> NULL
func Format(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case Expression:
		return v.sql
	case Column:
		return string(v)
	case LiteralValue:
		return QuoteValue(v.Value)
	case time.Time:
		return Datetime(v)
	case *time.Time:
		if v == nil {
			return "NULL"
		}
		return Datetime(*v)
	case string:
		return formatString(v)
	case bool:
		return formatBool(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return Quote(v.String())
	}
	return Quote(fmt.Sprint(value))
}

func formatString(s string) string {
	if aliasColumnPattern.MatchString(s) {
		return s
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return Quote(t.Format("2006-01-02"))
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if isMidnight(t) {
				return Quote(t.Format("2006-01-02"))
			}
			return Datetime(t)
		}
	}
	return Quote(s)
}

func isMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

func formatBool(b bool) string {
	if b {
		return "'t'"
	}
	return "'f'"
}

// Quote 单引号包裹，内部的单引号加倍
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteValue 任意值都渲染为带引号的字面量，用于等值过滤、IN 列表和写操作
func QuoteValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return Datetime(v)
	case *time.Time:
		if v == nil {
			return "NULL"
		}
		return Datetime(*v)
	case bool:
		return formatBool(v)
	case string:
		return Quote(v)
	case float64:
		return Quote(strconv.FormatFloat(v, 'f', -1, 64))
	case float32:
		return Quote(strconv.FormatFloat(float64(v), 'f', -1, 32))
	case Expression:
		return v.sql
	}
	return Quote(fmt.Sprint(value))
}
