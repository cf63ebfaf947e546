package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hatlonely/ifxorm/log/writer"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewSLogWithOptions(t *testing.T) {
	tests := []struct {
		name    string
		options *SLogOptions
		wantErr bool
	}{
		{name: "nil options", options: nil, wantErr: true},
		{name: "default console output", options: &SLogOptions{Level: "info"}},
		{name: "json to stderr", options: &SLogOptions{Level: "debug", Format: "json", Output: writer.Options{Type: "console", Console: writer.ConsoleWriterOptions{Target: "stderr"}}}},
		{name: "invalid level", options: &SLogOptions{Level: "invalid"}, wantErr: true},
		{name: "invalid format", options: &SLogOptions{Format: "xml"}, wantErr: true},
		{name: "invalid writer", options: &SLogOptions{Output: writer.Options{Type: "file"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewSLogWithOptions(tt.options)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSLogWithOptions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && l == nil {
				t.Fatal("NewSLogWithOptions() returned nil logger")
			}
		})
	}
}

func TestSLogOutput(t *testing.T) {
	Convey("SLog 输出", t, func() {
		var buf bytes.Buffer

		Convey("json 格式带自定义字段", func() {
			l, err := NewSLogWithWriter(&buf, &SLogOptions{Level: "debug", Format: "json", Fields: map[string]any{"component": "ifxorm"}})
			So(err, ShouldBeNil)

			l.With("table", "clientes").DebugContext(context.Background(), "compiled", "sql", "SELECT 1")

			var record map[string]any
			So(json.Unmarshal(buf.Bytes(), &record), ShouldBeNil)
			So(record["msg"], ShouldEqual, "compiled")
			So(record["table"], ShouldEqual, "clientes")
			So(record["sql"], ShouldEqual, "SELECT 1")
			So(record["component"], ShouldEqual, "ifxorm")
		})

		Convey("低于级别的日志被丢弃", func() {
			l, err := NewSLogWithWriter(&buf, &SLogOptions{Level: "warn"})
			So(err, ShouldBeNil)

			l.Info("hidden")
			l.Warn("shown")
			So(strings.Contains(buf.String(), "hidden"), ShouldBeFalse)
			So(strings.Contains(buf.String(), "shown"), ShouldBeTrue)
		})

		Convey("截断过长的 sql", func() {
			l, err := NewSLogWithWriter(&buf, &SLogOptions{Format: "json", MaxSQLLength: 8, TimeFormat: "2006-01-02"})
			So(err, ShouldBeNil)

			l.Info("query", "sql", "SELECT t1.id FROM clientes AS t1", "table", "clientes")

			var record map[string]any
			So(json.Unmarshal(buf.Bytes(), &record), ShouldBeNil)
			So(record["sql"], ShouldEqual, "SELECT t...")
			So(record["table"], ShouldEqual, "clientes")
			So(record["time"], ShouldHaveLength, len("2006-01-02"))
		})

		Convey("分组", func() {
			l, err := NewSLogWithWriter(&buf, &SLogOptions{Format: "text"})
			So(err, ShouldBeNil)

			l.WithGroup("cache").Info("hit", "key", "abc")
			So(buf.String(), ShouldContainSubstring, "cache.key=abc")
		})
	})
}
