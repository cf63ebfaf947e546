// Package introspect 从 Informix 系统表读取表结构和外键
package introspect

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/hatlonely/ifxorm/rdb"
	"github.com/hatlonely/ifxorm/rdb/expr"
	"github.com/hatlonely/ifxorm/rdb/model"
	"github.com/pkg/errors"
)

// Informix 实现 model.Introspector
type Informix struct {
	conn rdb.Connection
}

func NewInformix(conn rdb.Connection) *Informix {
	return &Informix{conn: conn}
}

// indexParts sysindexes 的 part1..part16
func indexParts(alias string) string {
	parts := make([]string, 16)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s.part%d", alias, i+1)
	}
	return strings.Join(parts, ", ")
}

// DescribeTableSQL 按列号排序返回列名、coltype、长度、列号和是否属于主键
func DescribeTableSQL(table string) string {
	return "SELECT c.colname AS name, c.coltype AS coltype, c.collength AS length, c.colno AS position, " +
		"CASE WHEN EXISTS (SELECT 1 FROM sysconstraints pc JOIN sysindexes pi ON pi.idxname = pc.idxname AND pi.tabid = pc.tabid " +
		"WHERE pc.tabid = t.tabid AND pc.constrtype = 'P' AND c.colno IN (" + indexParts("pi") + ")) THEN 1 ELSE 0 END AS pk " +
		"FROM systables t JOIN syscolumns c ON t.tabid = c.tabid " +
		"WHERE t.tabname = " + expr.Quote(normalizeTable(table)) + " ORDER BY c.colno"
}

// DescribeForeignKeysSQL 本表作为引用方或被引用方的外键
func DescribeForeignKeysSQL(table string) string {
	name := expr.Quote(normalizeTable(table))
	return "SELECT c.constrname AS constraint_name, TRIM(fk.tabname) AS from_table, TRIM(pk.tabname) AS to_table, " +
		"TRIM(fc.colname) AS from_column, TRIM(pc.colname) AS to_column " +
		"FROM sysconstraints c " +
		"JOIN sysreferences r ON c.constrid = r.constrid " +
		"JOIN systables fk ON c.tabid = fk.tabid " +
		"JOIN systables pk ON r.ptabid = pk.tabid " +
		"JOIN sysindexes idx_fk ON idx_fk.idxname = c.idxname AND idx_fk.tabid = c.tabid " +
		"JOIN sysindexes idx_pk ON idx_pk.idxname = r.primary AND idx_pk.tabid = r.ptabid " +
		"JOIN syscolumns fc ON fc.tabid = fk.tabid AND fc.colno IN (" + indexParts("idx_fk") + ") " +
		"JOIN syscolumns pc ON pc.tabid = pk.tabid AND pc.colno IN (" + indexParts("idx_pk") + ") " +
		"WHERE c.constrtype = 'R' " +
		"AND (COALESCE(TRIM(fk.tabname), '') = " + name + " OR COALESCE(TRIM(pk.tabname), '') = " + name + ") " +
		"AND idx_fk.part1 IS NOT NULL AND idx_pk.part1 IS NOT NULL"
}

// Informix 系统表中的表名是小写的
func normalizeTable(table string) string {
	return strings.ToLower(strings.TrimSpace(table))
}

func (i *Informix) DescribeTable(ctx context.Context, table string) ([]model.ColumnInfo, error) {
	rows, err := i.conn.ExecuteQuery(ctx, DescribeTableSQL(table))
	if err != nil {
		return nil, errors.WithMessagef(err, "query syscolumns of %s failed", table)
	}

	columns := make([]model.ColumnInfo, 0, len(rows))
	for _, row := range rows {
		c := model.ColumnInfo{
			Name:       strings.TrimSpace(toString(row["name"])),
			ColType:    toInt(row["coltype"]),
			Length:     toInt(row["length"]),
			Position:   toInt(row["position"]),
			PrimaryKey: toInt(row["pk"]) != 0,
		}
		c.Type = c.TypeName()
		columns = append(columns, c)
	}
	return columns, nil
}

func (i *Informix) DescribeForeignKeys(ctx context.Context, table string) ([]model.FKInfo, error) {
	rows, err := i.conn.ExecuteQuery(ctx, DescribeForeignKeysSQL(table))
	if err != nil {
		return nil, errors.WithMessagef(err, "query sysreferences of %s failed", table)
	}

	fks := make([]model.FKInfo, 0, len(rows))
	for _, row := range rows {
		fks = append(fks, model.FKInfo{
			ConstraintName: strings.TrimSpace(toString(row["constraint_name"])),
			FromTable:      strings.TrimSpace(toString(row["from_table"])),
			ToTable:        strings.TrimSpace(toString(row["to_table"])),
			FromColumn:     strings.TrimSpace(toString(row["from_column"])),
			ToColumn:       strings.TrimSpace(toString(row["to_column"])),
		})
	}
	return fks, nil
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	}
	n, _ := strconv.Atoi(strings.TrimSpace(toString(v)))
	return n
}
