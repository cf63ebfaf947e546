package rdb

import (
	"context"
	"strings"
	"time"

	"github.com/hatlonely/ifxorm/log/logger"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ObservableOptions struct {
	// Name 作为指标名前缀和 tracer 名
	Name          string `cfg:"name" def:"ifxorm_sql"`
	EnableMetrics bool   `cfg:"enableMetrics" def:"true"`
	EnableTracing bool   `cfg:"enableTracing" def:"true"`

	Registerer prometheus.Registerer `cfg:"-"`
	Logger     logger.Logger         `cfg:"-"`
}

// ObservableConnection 为每条语句记录 span、指标和 debug 日志
type ObservableConnection struct {
	conn   Connection
	name   string
	logger logger.Logger
	tracer trace.Tracer

	statements *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func NewObservableConnection(conn Connection, options *ObservableOptions) *ObservableConnection {
	c := &ObservableConnection{conn: conn, name: options.Name, logger: options.Logger}
	if options.EnableTracing {
		c.tracer = otel.Tracer(options.Name)
	}
	if options.EnableMetrics {
		c.statements = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: options.Name + "_statements_total",
			Help: "Total number of statements sent to the connection",
		}, []string{"statement", "status"})
		c.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    options.Name + "_statement_duration_seconds",
			Help:    "Duration of statements in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"statement"})
		if options.Registerer != nil {
			options.Registerer.MustRegister(c.statements, c.duration)
		}
	}
	return c
}

// Statements 语句计数器，未启用指标时为 nil
func (c *ObservableConnection) Statements() *prometheus.CounterVec {
	return c.statements
}

func (c *ObservableConnection) Execute(ctx context.Context, sql string) error {
	return c.observe(ctx, sql, func(ctx context.Context) error {
		return c.conn.Execute(ctx, sql)
	})
}

func (c *ObservableConnection) ExecuteQuery(ctx context.Context, sql string) ([]Row, error) {
	var rows []Row
	err := c.observe(ctx, sql, func(ctx context.Context) error {
		var err error
		rows, err = c.conn.ExecuteQuery(ctx, sql)
		return err
	})
	return rows, err
}

// Close 关闭底层连接（如果支持）
func (c *ObservableConnection) Close() error {
	if closer, ok := c.conn.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func (c *ObservableConnection) observe(ctx context.Context, sql string, fn func(context.Context) error) error {
	statement := StatementKind(sql)
	start := time.Now()

	var span trace.Span
	if c.tracer != nil {
		ctx, span = c.tracer.Start(ctx, "sql."+statement, trace.WithAttributes(
			attribute.String("db.system", "informix"),
			attribute.String("db.statement", sql),
		))
		defer span.End()
	}

	err := fn(ctx)
	duration := time.Since(start)

	if span != nil {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if c.statements != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		c.statements.WithLabelValues(statement, status).Inc()
		c.duration.WithLabelValues(statement).Observe(duration.Seconds())
	}

	if c.logger != nil {
		if err != nil {
			c.logger.DebugContext(ctx, "statement failed", "sql", sql, "duration_ms", duration.Milliseconds(), "error", err.Error())
		} else {
			c.logger.DebugContext(ctx, "statement executed", "sql", sql, "duration_ms", duration.Milliseconds())
		}
	}
	return err
}

// StatementKind 语句的第一个关键字（小写），例如 select、insert、begin
func StatementKind(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}
