package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hatlonely/ifxorm/log/logger"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ObservableStoreOptions struct {
	// Name 组件名称，作为指标名前缀、日志 component 字段和 span 属性
	Name string `cfg:"name" def:"ifxorm_store"`

	EnableMetrics bool `cfg:"enableMetrics" def:"true"`
	EnableTracing bool `cfg:"enableTracing"`

	// Registerer 为空时指标只在本地累计，不注册到任何 registry
	Registerer prometheus.Registerer `cfg:"-"`
	// Logger 为空时不记录日志
	Logger logger.Logger `cfg:"-"`
}

// ObservableMetrics 封装 prometheus 指标
type ObservableMetrics struct {
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
}

func NewObservableMetrics(name string, registerer prometheus.Registerer) *ObservableMetrics {
	metrics := &ObservableMetrics{
		operationCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_operations_total",
				Help: "Total number of store operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_operation_duration_seconds",
				Help:    "Duration of store operations in seconds",
				Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(metrics.operationCounter, metrics.operationDuration)
	}
	return metrics
}

// ObservableStore 装饰器，为任何 Store 添加观测能力
type ObservableStore[K, V any] struct {
	store Store[K, V]

	name    string
	logger  logger.Logger
	metrics *ObservableMetrics
	tracer  trace.Tracer
}

func NewObservableStore[K, V any](store Store[K, V], options *ObservableStoreOptions) *ObservableStore[K, V] {
	obs := &ObservableStore[K, V]{
		store: store,
		name:  options.Name,
	}
	if options.Logger != nil {
		obs.logger = options.Logger.WithGroup("observableStore")
	}
	if options.EnableMetrics {
		obs.metrics = NewObservableMetrics(options.Name, options.Registerer)
	}
	if options.EnableTracing {
		obs.tracer = otel.Tracer(fmt.Sprintf("store.%s", options.Name))
	}
	return obs
}

// Metrics 返回指标集合，未启用时为 nil
func (obs *ObservableStore[K, V]) Metrics() *ObservableMetrics {
	return obs.metrics
}

// observeOperation 统一的操作观测逻辑。
// 状态分为 success、miss（ErrKeyNotFound，缓存未命中）和 error，只有 error 算失败
func (obs *ObservableStore[K, V]) observeOperation(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()

	var span trace.Span
	if obs.tracer != nil {
		ctx, span = obs.tracer.Start(ctx, fmt.Sprintf("store.%s", operation),
			trace.WithAttributes(
				attribute.String("component", obs.name),
				attribute.String("operation", operation),
			),
		)
		defer span.End()
	}

	err := fn(ctx)
	duration := time.Since(start)
	status := "success"
	switch {
	case errors.Is(err, ErrKeyNotFound):
		status = "miss"
	case err != nil:
		status = "error"
	}
	failed := status == "error"

	if span != nil {
		if failed {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if obs.metrics != nil {
		obs.metrics.operationCounter.WithLabelValues(operation, status).Inc()
		obs.metrics.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	if obs.logger != nil {
		if failed {
			obs.logger.ErrorContext(ctx, "store operation failed",
				"component", obs.name,
				"operation", operation,
				"duration_ms", duration.Milliseconds(),
				"error", err.Error(),
			)
		} else {
			obs.logger.DebugContext(ctx, "store operation completed",
				"component", obs.name,
				"operation", operation,
				"status", status,
				"duration_ms", duration.Milliseconds(),
			)
		}
	}

	return err
}

func (obs *ObservableStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
	return obs.observeOperation(ctx, "set", func(ctx context.Context) error {
		return obs.store.Set(ctx, key, value, opts...)
	})
}

func (obs *ObservableStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var result V
	err := obs.observeOperation(ctx, "get", func(ctx context.Context) error {
		var getErr error
		result, getErr = obs.store.Get(ctx, key)
		return getErr
	})
	return result, err
}

func (obs *ObservableStore[K, V]) Del(ctx context.Context, key K) error {
	return obs.observeOperation(ctx, "del", func(ctx context.Context) error {
		return obs.store.Del(ctx, key)
	})
}

func (obs *ObservableStore[K, V]) Close() error {
	return obs.store.Close()
}
