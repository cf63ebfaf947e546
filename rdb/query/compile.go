package query

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hatlonely/ifxorm/rdb"
	"github.com/hatlonely/ifxorm/rdb/expr"
	"github.com/pkg/errors"
)

var errNoTable = errors.New("builder has no model, only RawSQL can be executed")

// Compile 子句顺序固定：SKIP/FIRST、DISTINCT、投影、FROM、JOIN、WHERE、GROUP BY、HAVING、ORDER BY。
// 没有配置的子句不出现；设置了 RawSQL 时直接返回它
func (b *Builder) Compile() (string, error) {
	if b.err != nil {
		return "", b.err
	}
	if b.rawSQL != "" {
		return b.rawSQL, nil
	}
	if b.model.Table() == "" {
		return "", errNoTable
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if b.hasLimit {
		sb.WriteString("SKIP " + strconv.Itoa(b.offset) + " FIRST " + strconv.Itoa(b.limit) + " ")
	} else if b.offset > 0 {
		sb.WriteString("SKIP " + strconv.Itoa(b.offset) + " ")
	}
	if b.distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(strings.Join(b.projection(), ", "))
	sb.WriteString(" FROM " + b.model.Table() + " AS " + string(b.alias))

	for _, j := range b.joins {
		sb.WriteString(" " + string(j.kind) + " JOIN " + j.table + " AS " + string(j.alias) + " ON " + j.on)
	}
	if conditions := b.conditions(); len(conditions) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	if len(b.groupBy) > 0 {
		sb.WriteString(" GROUP BY " + strings.Join(b.groupBy, ", "))
	}
	if b.having != "" {
		sb.WriteString(" HAVING " + b.having)
	}
	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY " + strings.Join(b.orderBy, ", "))
	}
	return sb.String(), nil
}

// CountSQL 只使用 Filter 的条件，IN、NOT IN、JOIN、GROUP BY、HAVING 都不参与计数
func (b *Builder) CountSQL() (string, error) {
	if b.err != nil {
		return "", b.err
	}
	if b.rawSQL != "" {
		return "SELECT COUNT(*) AS count FROM (" + b.rawSQL + ") AS t", nil
	}
	if b.model.Table() == "" {
		return "", errNoTable
	}
	sql := "SELECT COUNT(*) AS count FROM " + b.model.Table() + " AS " + string(b.alias)
	if len(b.filters) > 0 {
		sql += " WHERE " + strings.Join(b.filters, " AND ")
	}
	return sql, nil
}

// ExistsSQL SELECT FIRST 1 1 FROM (<compiled>) AS t
func (b *Builder) ExistsSQL() (string, error) {
	sql, err := b.Compile()
	if err != nil {
		return "", err
	}
	return "SELECT FIRST 1 1 FROM (" + sql + ") AS t", nil
}

// projection 未调用 Select 时投影主表的全部字段；存在 JOIN 时每列加上 AS <别名>_<列>，
// 并追加每个已知模型的连接目标的全部字段
func (b *Builder) projection() []string {
	if len(b.selects) > 0 {
		return b.selects
	}

	labeled := len(b.joins) > 0
	var columns []string
	for _, name := range b.model.FieldNames() {
		columns = append(columns, projectColumn(b.alias, name, labeled))
	}
	seen := map[Alias]bool{b.alias: true}
	for _, j := range b.joins {
		if j.model == nil || seen[j.alias] {
			continue
		}
		seen[j.alias] = true
		for _, name := range j.model.FieldNames() {
			columns = append(columns, projectColumn(j.alias, name, true))
		}
	}
	if len(columns) == 0 {
		return []string{"*"}
	}
	return columns
}

func projectColumn(alias Alias, name string, labeled bool) string {
	col := alias.Col(name).SQL()
	if labeled {
		col += " AS " + string(alias) + "_" + name
	}
	return col
}

// conditions anti-join 的 IS NULL 在最前，然后依次是 Filter、IN、NOT IN
func (b *Builder) conditions() []string {
	var conditions []string
	if b.antiJoin != "" {
		conditions = append(conditions, b.antiJoin)
	}
	conditions = append(conditions, b.filters...)
	for _, p := range b.inFilters {
		if len(p.values) == 0 {
			// 空集合不匹配任何行
			conditions = append(conditions, "1 = 0")
			continue
		}
		conditions = append(conditions, p.column+" IN ("+quoteList(p.values)+")")
	}
	for _, p := range b.notInFilters {
		if len(p.values) == 0 {
			continue
		}
		conditions = append(conditions, p.column+" NOT IN ("+quoteList(p.values)+")")
	}
	return conditions
}

func quoteList(values []any) string {
	items := make([]string, len(values))
	for i, v := range values {
		items[i] = expr.QuoteValue(v)
	}
	return strings.Join(items, ", ")
}

var qualifiedColumnPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*\.([A-Za-z_][A-Za-z0-9_]*)$`)

// headers 结果集的列名，与行映射后的字段名或附加列名一致。
// 没有模型也没有 Select 时返回 nil，由 rowHeaders 从行中取
func (b *Builder) headers() []string {
	if len(b.selects) == 0 && b.model.Table() == "" {
		return nil
	}
	if len(b.selects) > 0 {
		headers := make([]string, len(b.selects))
		for i, s := range b.selects {
			headers[i] = outputLabel(s)
		}
		return headers
	}

	headers := b.model.FieldNames()
	seen := map[Alias]bool{b.alias: true}
	for _, j := range b.joins {
		if j.model == nil || seen[j.alias] {
			continue
		}
		seen[j.alias] = true
		for _, name := range j.model.FieldNames() {
			headers = append(headers, string(j.alias)+"."+name)
		}
	}
	return headers
}

// rowHeaders 所有行出现过的列名，按字母序
func rowHeaders(rows []rdb.Row) []string {
	seen := map[string]bool{}
	var headers []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}
	sort.Strings(headers)
	return headers
}

// outputLabel "x AS y" 取 y，"t1.nome" 取 nome，其他原样
func outputLabel(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(strings.ToLower(s), " as "); i >= 0 {
		return strings.ToLower(strings.TrimSpace(s[i+4:]))
	}
	if m := qualifiedColumnPattern.FindStringSubmatch(s); m != nil {
		return strings.ToLower(m[1])
	}
	return s
}

// columnName 把自动投影的 <别名>_<列> 标签还原：主表列还原为字段名，连接目标的列还原为 <别名>.<列>
func (b *Builder) columnName(label string) string {
	if len(b.joins) == 0 || len(b.selects) > 0 {
		return label
	}
	if rest, ok := strings.CutPrefix(label, string(b.alias)+"_"); ok && b.model.HasField(rest) {
		return rest
	}
	for _, j := range b.joins {
		if j.model == nil {
			continue
		}
		if rest, ok := strings.CutPrefix(label, string(j.alias)+"_"); ok && j.model.HasField(rest) {
			return string(j.alias) + "." + rest
		}
	}
	return label
}
