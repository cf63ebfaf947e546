package query

import (
	"regexp"
	"strings"

	"github.com/hatlonely/ifxorm/rdb"
	"github.com/hatlonely/ifxorm/rdb/expr"
	"github.com/hatlonely/ifxorm/rdb/model"
	"github.com/pkg/errors"
)

type JoinKind string

const (
	Inner JoinKind = "INNER"
	Left  JoinKind = "LEFT"
	Right JoinKind = "RIGHT"
	Full  JoinKind = "FULL"
	// LeftAnti 左表中在右表没有匹配的行，编译为 LEFT JOIN 加 <连接别名>.<列> IS NULL
	LeftAnti JoinKind = "LEFT ANTI"
	// RightAnti 编译为 RIGHT JOIN 加 <连接别名>.<列> IS NULL
	RightAnti JoinKind = "RIGHT ANTI"
)

// ParseJoinKind 不区分大小写，接受 left_anti、LEFT ANTI、left-anti、LEFT OUTER JOIN 等写法
func ParseJoinKind(s string) (JoinKind, error) {
	fields := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToUpper(s)))
	words := fields[:0]
	for _, f := range fields {
		if f != "OUTER" && f != "JOIN" {
			words = append(words, f)
		}
	}
	kind := JoinKind(strings.Join(words, " "))
	switch kind {
	case Inner, Left, Right, Full, LeftAnti, RightAnti:
		return kind, nil
	case "":
		return Inner, nil
	}
	return "", errors.Wrapf(rdb.ErrJoinConfig, "unknown join kind %q", s)
}

type join struct {
	kind  JoinKind
	table string
	alias Alias
	on    string
	// model 连接目标的字段，用于自动投影；子查询和未注册的表为 nil
	model *model.Model
}

// Subquery 已编译并指定了别名的子查询，可以作为 Join 的目标
type Subquery struct {
	sql   string
	alias Alias
	err   error
}

// As 编译当前配置，作为别名为 alias 的子查询
func (b *Builder) As(alias Alias) *Subquery {
	sql, err := b.Compile()
	return &Subquery{sql: sql, alias: alias, err: err}
}

func (s *Subquery) Alias() Alias { return s.alias }
func (s *Subquery) SQL() string  { return s.sql }

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Join 连接表名、*model.Model 或 As 得到的 *Subquery，表和模型按顺序分配 t2、t3 …… 别名。
// on 可以是：
//   - 单个列名：<主表别名>.col = <连接别名>.col
//   - []string：多个同名列的等值条件，用 AND 连接
//   - 其他字符串或 expr.Expression：原样使用
//
// kind 最多一个，默认 INNER。配置错误在这里记录，由编译和执行操作返回
func (b *Builder) Join(target any, on any, kind ...JoinKind) *Builder {
	if len(kind) > 1 {
		return b.fail(errors.Wrapf(rdb.ErrJoinConfig, "join kind given %d times", len(kind)))
	}
	k := Inner
	if len(kind) == 1 {
		parsed, err := ParseJoinKind(string(kind[0]))
		if err != nil {
			return b.fail(err)
		}
		k = parsed
	}

	j := join{kind: k}
	switch t := target.(type) {
	case string:
		j.table = t
		if b.registry != nil {
			j.model, _ = b.registry.Lookup(t)
		}
		j.alias = b.nextAlias()
	case *model.Model:
		j.table = t.Table()
		j.model = t
		j.alias = b.nextAlias()
	case *Subquery:
		if t.err != nil {
			return b.fail(errors.WithMessage(t.err, "subquery"))
		}
		if t.alias == "" {
			return b.fail(errors.Wrap(rdb.ErrJoinConfig, "subquery has no alias"))
		}
		if b.aliasUsed(t.alias) {
			return b.fail(errors.Wrapf(rdb.ErrJoinConfig, "alias %s is already in use", t.alias))
		}
		j.table = "(" + t.sql + ")"
		j.alias = t.alias
	case *Builder:
		return b.fail(errors.Wrap(rdb.ErrJoinConfig, "subquery must be materialized with As(alias) before joining"))
	default:
		return b.fail(errors.Wrapf(rdb.ErrJoinConfig, "unsupported join target %T", target))
	}

	cond, columns, err := b.onCondition(on, j.alias)
	if err != nil {
		return b.fail(err)
	}
	j.on = cond

	switch k {
	case LeftAnti, RightAnti:
		if b.antiJoin != "" {
			return b.fail(errors.Wrap(rdb.ErrJoinConfig, "only one anti-join is supported"))
		}
		if len(columns) == 0 {
			return b.fail(errors.Wrap(rdb.ErrJoinConfig, "anti-join needs a shared column name, not a verbatim condition"))
		}
		j.kind = Left
		if k == RightAnti {
			j.kind = Right
		}
		b.antiJoin = j.alias.Col(columns[0]).SQL() + " IS NULL"
	}

	b.joins = append(b.joins, j)
	return b
}

// onCondition 返回条件和共享列名，原样条件的列名为空
func (b *Builder) onCondition(on any, alias Alias) (string, []string, error) {
	var columns []string
	switch v := on.(type) {
	case string:
		if !identifierPattern.MatchString(v) {
			if strings.TrimSpace(v) == "" {
				return "", nil, errors.Wrap(rdb.ErrJoinConfig, "empty join condition")
			}
			return v, nil, nil
		}
		columns = []string{v}
	case []string:
		if len(v) == 0 {
			return "", nil, errors.Wrap(rdb.ErrJoinConfig, "empty join column list")
		}
		columns = v
	case expr.Expression:
		return v.SQL(), nil, nil
	default:
		return "", nil, errors.Wrapf(rdb.ErrJoinConfig, "unsupported join condition %T", on)
	}

	conds := make([]string, len(columns))
	for i, c := range columns {
		conds[i] = b.alias.Col(c).Eq(alias.Col(c))
	}
	return strings.Join(conds, " AND "), columns, nil
}

// nextAlias 跳过主表别名和子查询已经占用的别名
func (b *Builder) nextAlias() Alias {
	for {
		b.aliasSeq++
		a := T(b.aliasSeq)
		if !b.aliasUsed(a) {
			return a
		}
	}
}

func (b *Builder) aliasUsed(a Alias) bool {
	if a == b.alias {
		return true
	}
	for _, j := range b.joins {
		if j.alias == a {
			return true
		}
	}
	return false
}
