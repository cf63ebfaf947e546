package model

import (
	"strings"
)

type RelationKind int

const (
	// ManyToOne 本表的外键列指向对方表
	ManyToOne RelationKind = iota + 1
	// OneToMany 对方表的外键列指向本表
	OneToMany
)

func (k RelationKind) String() string {
	switch k {
	case ManyToOne:
		return "many-to-one"
	case OneToMany:
		return "one-to-many"
	}
	return "unknown"
}

// Relation 预加载时执行 SELECT ... FROM Table WHERE RemoteKey IN (本表 LocalKey 的取值)
type Relation struct {
	Name      string
	Table     string
	Kind      RelationKind
	LocalKey  string
	RemoteKey string
}

// FKInfo 外键约束的一列
type FKInfo struct {
	ConstraintName string
	FromTable      string
	ToTable        string
	FromColumn     string
	ToColumn       string
}

// RelationsFromForeignKeys 由外键推导关系：
// 本表是引用方时生成多对一关系，名字为外键列去掉 _id 后缀；
// 本表是被引用方时生成一对多关系，名字为引用方表名小写加 s
func RelationsFromForeignKeys(table string, fks []FKInfo) []Relation {
	var relations []Relation
	for _, fk := range fks {
		if strings.EqualFold(fk.FromTable, table) {
			relations = append(relations, Relation{
				Name:      strings.TrimSuffix(fk.FromColumn, "_id"),
				Table:     fk.ToTable,
				Kind:      ManyToOne,
				LocalKey:  fk.FromColumn,
				RemoteKey: fk.ToColumn,
			})
		}
		if strings.EqualFold(fk.ToTable, table) {
			relations = append(relations, Relation{
				Name:      strings.ToLower(fk.FromTable) + "s",
				Table:     fk.FromTable,
				Kind:      OneToMany,
				LocalKey:  fk.ToColumn,
				RemoteKey: fk.FromColumn,
			})
		}
	}
	return relations
}
