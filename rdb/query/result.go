package query

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/hatlonely/ifxorm/rdb/model"
	"github.com/hatlonely/ifxorm/rdb/render"
)

// Result 一次查询得到的实体，以及生成它们时使用的列
type Result struct {
	entities    []*model.Entity
	headers     []string
	renderCache *render.Cache
}

func newResult(entities []*model.Entity, headers []string, renderCache *render.Cache) *Result {
	return &Result{entities: entities, headers: headers, renderCache: renderCache}
}

func (r *Result) Len() int { return len(r.entities) }

func (r *Result) Entities() []*model.Entity {
	return append([]*model.Entity(nil), r.entities...)
}

func (r *Result) At(i int) *model.Entity {
	return r.entities[i]
}

// First 没有结果时返回 nil, false
func (r *Result) First() (*model.Entity, bool, error) {
	if len(r.entities) == 0 {
		return nil, false, nil
	}
	return r.entities[0], true, nil
}

// Fields 投影的列名
func (r *Result) Fields() []string {
	return append([]string(nil), r.headers...)
}

// Headers 同 Fields
func (r *Result) Headers() []string {
	return r.Fields()
}

// Records 按列名顺序把每个实体转换为文本
func (r *Result) Records() [][]string {
	records := make([][]string, len(r.entities))
	for i, e := range r.entities {
		record := make([]string, len(r.headers))
		for j, h := range r.headers {
			record[j] = formatCell(e.Get(h))
		}
		records[i] = record
	}
	return records
}

// ToMaps 包含已预加载的关联实体
func (r *Result) ToMaps() []map[string]any {
	maps := make([]map[string]any, len(r.entities))
	for i, e := range r.entities {
		maps[i] = e.ToMap(true)
	}
	return maps
}

// Render 写出表格，配置了渲染缓存时优先使用缓存
func (r *Result) Render(ctx context.Context, w io.Writer) error {
	var (
		s   string
		err error
	)
	if r.renderCache != nil {
		s, err = r.renderCache.Render(ctx, r.headers, r.Records())
		if err != nil {
			return err
		}
	} else {
		s = render.Table(r.headers, r.Records())
	}
	_, err = io.WriteString(w, s+"\n")
	return err
}

func (r *Result) String() string {
	return render.Table(r.headers, r.Records())
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case time.Time:
		return x.Format("2006-01-02 15:04:05")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "t"
		}
		return "f"
	}
	return fmt.Sprint(v)
}
