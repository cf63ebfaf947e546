package model

import (
	"encoding/json"
	"sort"

	"github.com/hatlonely/ifxorm/rdb"
	"github.com/pkg/errors"
)

// Entity 一行数据：已声明字段的值，join 带回的附加列（alias.column），以及预加载的关联实体
type Entity struct {
	model   *Model
	values  map[string]any
	extras  map[string]any
	related map[string][]*Entity
}

func newEntity(m *Model) *Entity {
	return &Entity{model: m, values: map[string]any{}}
}

func (e *Entity) Model() *Model { return e.model }

// Get 先查字段，再查附加列，都不存在时返回 nil
func (e *Entity) Get(name string) any {
	if v, ok := e.values[name]; ok {
		return v
	}
	return e.extras[name]
}

// Has 字段或附加列是否有值（包括显式设置的 nil）
func (e *Entity) Has(name string) bool {
	if _, ok := e.values[name]; ok {
		return true
	}
	_, ok := e.extras[name]
	return ok
}

// Set 设置字段值，值按字段类型规范化
func (e *Entity) Set(name string, value any) error {
	f, ok := e.model.Field(name)
	if !ok {
		return errors.Errorf("%s has no field %s", e.model.table, name)
	}
	v, err := f.Normalize(value)
	if err != nil {
		return err
	}
	e.values[name] = v
	return nil
}

// SetExtra 保存不属于字段的列
func (e *Entity) SetExtra(name string, value any) {
	if e.extras == nil {
		e.extras = map[string]any{}
	}
	e.extras[name] = value
}

// Values 按字段声明顺序返回值，未设置的字段为 nil
func (e *Entity) Values() []any {
	values := make([]any, len(e.model.fields))
	for i, f := range e.model.fields {
		values[i] = e.values[f.Name]
	}
	return values
}

func (e *Entity) Extras() map[string]any {
	out := make(map[string]any, len(e.extras))
	for k, v := range e.extras {
		out[k] = v
	}
	return out
}

// ExtraNames 附加列名，按字典序
func (e *Entity) ExtraNames() []string {
	names := make([]string, 0, len(e.extras))
	for k := range e.extras {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (e *Entity) Related(name string) ([]*Entity, bool) {
	r, ok := e.related[name]
	return r, ok
}

func (e *Entity) SetRelated(name string, entities []*Entity) {
	if e.related == nil {
		e.related = map[string][]*Entity{}
	}
	if entities == nil {
		entities = []*Entity{}
	}
	e.related[name] = entities
}

// Validate 不可为空的字段必须有值，自增列除外
func (e *Entity) Validate() error {
	for _, f := range e.model.fields {
		if f.Nullable || f.AutoIncrement {
			continue
		}
		if e.values[f.Name] == nil {
			return &rdb.ValidationError{Table: e.model.table, Field: f.Name}
		}
	}
	return nil
}

// ToMap 字段和附加列；deep 为 true 时包含已预加载的关联实体
func (e *Entity) ToMap(deep bool) map[string]any {
	out := make(map[string]any, len(e.model.fields)+len(e.extras))
	for _, f := range e.model.fields {
		out[f.Name] = e.values[f.Name]
	}
	for k, v := range e.extras {
		out[k] = v
	}
	if deep {
		for name, entities := range e.related {
			items := make([]map[string]any, len(entities))
			for i, r := range entities {
				items[i] = r.ToMap(true)
			}
			out[name] = items
		}
	}
	return out
}

func (e *Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToMap(true))
}

// Clone 复制字段和附加列，不复制关联实体
func (e *Entity) Clone() *Entity {
	c := newEntity(e.model)
	for k, v := range e.values {
		c.values[k] = v
	}
	for k, v := range e.extras {
		c.SetExtra(k, v)
	}
	return c
}
