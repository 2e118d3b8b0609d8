package store

import (
	"context"
	"time"

	"github.com/hatlonely/tabdb/log"
	"github.com/hatlonely/tabdb/log/logger"
	"github.com/hatlonely/tabdb/schema"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ObservableOptions 不带 def 标签，配置中未出现时保持为 nil，各项观测需要显式开启
type ObservableOptions struct {
	// Name 指标名前缀、日志 component 字段和 span 属性，为空时为 tabdb_store
	Name string `cfg:"name"`

	EnableMetrics bool `cfg:"enableMetrics"`
	EnableLogging bool `cfg:"enableLogging"`
	EnableTracing bool `cfg:"enableTracing"`
}

type ObservableMetrics struct {
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	activeOperations  *prometheus.GaugeVec
	rowsReturned      *prometheus.HistogramVec
}

// NewObservableMetrics 同名指标已注册时复用已有的 collector
func NewObservableMetrics(name string, registerer prometheus.Registerer) (*ObservableMetrics, error) {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	operationCounter, err := register(registerer, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: name + "_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "table", "status"},
	))
	if err != nil {
		return nil, err
	}
	operationDuration, err := register(registerer, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name + "_operation_duration_seconds",
			Help:    "Duration of storage operations in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"operation"},
	))
	if err != nil {
		return nil, err
	}
	activeOperations, err := register(registerer, prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: name + "_active_operations",
			Help: "Number of in-flight storage operations",
		},
		[]string{"operation"},
	))
	if err != nil {
		return nil, err
	}
	rowsReturned, err := register(registerer, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    name + "_rows_returned",
			Help:    "Number of rows returned by select operations",
			Buckets: []float64{0, 1, 10, 100, 1000, 10000},
		},
		[]string{"table"},
	))
	if err != nil {
		return nil, err
	}

	return &ObservableMetrics{
		operationCounter:  operationCounter,
		operationDuration: operationDuration,
		activeOperations:  activeOperations,
		rowsReturned:      rowsReturned,
	}, nil
}

func register[C prometheus.Collector](registerer prometheus.Registerer, c C) (C, error) {
	if err := registerer.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, errors.Wrap(err, "register metrics failed")
	}
	return c, nil
}

// ObservableAdapter 为任意 Adapter 增加指标、追踪和日志
type ObservableAdapter struct {
	adapter Adapter

	name    string
	logger  logger.Logger
	metrics *ObservableMetrics
	tracer  trace.Tracer
}

// NewObservableAdapterWithOptions registerer 为 nil 时使用 prometheus 默认 registry，l 为 nil 时使用 log.Default()
func NewObservableAdapterWithOptions(adapter Adapter, options *ObservableOptions, registerer prometheus.Registerer, l logger.Logger) (*ObservableAdapter, error) {
	if adapter == nil {
		return nil, schema.InvalidArgumentf("adapter cannot be nil")
	}
	if options == nil {
		options = &ObservableOptions{Name: "tabdb_store", EnableMetrics: true, EnableLogging: true}
	}
	if options.Name == "" {
		options.Name = "tabdb_store"
	}

	obs := &ObservableAdapter{
		adapter: adapter,
		name:    options.Name,
	}

	if options.EnableLogging {
		if l == nil {
			l = log.Default()
		}
		obs.logger = l.WithGroup("store")
	}

	if options.EnableMetrics {
		metrics, err := NewObservableMetrics(options.Name, registerer)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create metrics")
		}
		obs.metrics = metrics
	}

	if options.EnableTracing {
		obs.tracer = otel.Tracer("tabdb.store." + options.Name)
	}

	return obs, nil
}

// Unwrap 返回被包装的 Adapter
func (obs *ObservableAdapter) Unwrap() Adapter {
	return obs.adapter
}

func (obs *ObservableAdapter) observe(ctx context.Context, operation string, table string, fn func(context.Context) error) error {
	start := time.Now()

	var span trace.Span
	if obs.tracer != nil {
		ctx, span = obs.tracer.Start(ctx, "store."+operation,
			trace.WithAttributes(
				attribute.String("component", obs.name),
				attribute.String("operation", operation),
				attribute.String("table", table),
			),
		)
		defer span.End()
	}

	if obs.metrics != nil {
		obs.metrics.activeOperations.WithLabelValues(operation).Inc()
		defer obs.metrics.activeOperations.WithLabelValues(operation).Dec()
	}

	err := fn(ctx)
	duration := time.Since(start)

	if span != nil {
		span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if obs.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		obs.metrics.operationCounter.WithLabelValues(operation, table, status).Inc()
		obs.metrics.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	if obs.logger != nil {
		if err != nil {
			obs.logger.WarnContext(ctx, "storage operation failed",
				"component", obs.name,
				"operation", operation,
				"table", table,
				"duration_ms", duration.Milliseconds(),
				"error", err.Error(),
			)
		} else {
			obs.logger.DebugContext(ctx, "storage operation completed",
				"component", obs.name,
				"operation", operation,
				"table", table,
				"duration_ms", duration.Milliseconds(),
			)
		}
	}

	return err
}

func (obs *ObservableAdapter) Connect(ctx context.Context) error {
	return obs.observe(ctx, "connect", "", obs.adapter.Connect)
}

func (obs *ObservableAdapter) Close() error {
	return obs.observe(context.Background(), "close", "", func(context.Context) error {
		return obs.adapter.Close()
	})
}

func (obs *ObservableAdapter) Connected() bool {
	return obs.adapter.Connected()
}

func (obs *ObservableAdapter) CreateTable(ctx context.Context, table string, columns []string) error {
	return obs.observe(ctx, "create_table", table, func(ctx context.Context) error {
		return obs.adapter.CreateTable(ctx, table, columns)
	})
}

func (obs *ObservableAdapter) DropTable(ctx context.Context, table string) error {
	return obs.observe(ctx, "drop_table", table, func(ctx context.Context) error {
		return obs.adapter.DropTable(ctx, table)
	})
}

func (obs *ObservableAdapter) Insert(ctx context.Context, table string, values map[string]string) (int64, error) {
	var id int64
	err := obs.observe(ctx, "insert", table, func(ctx context.Context) error {
		var err error
		id, err = obs.adapter.Insert(ctx, table, values)
		return err
	})
	return id, err
}

func (obs *ObservableAdapter) SelectAll(ctx context.Context, table string, columns []string) ([]schema.Row, error) {
	var rows []schema.Row
	err := obs.observe(ctx, "select_all", table, func(ctx context.Context) error {
		var err error
		rows, err = obs.adapter.SelectAll(ctx, table, columns)
		return err
	})
	if err == nil && obs.metrics != nil {
		obs.metrics.rowsReturned.WithLabelValues(table).Observe(float64(len(rows)))
	}
	return rows, err
}

func (obs *ObservableAdapter) Update(ctx context.Context, table string, id int64, values map[string]string) (bool, error) {
	var ok bool
	err := obs.observe(ctx, "update", table, func(ctx context.Context) error {
		var err error
		ok, err = obs.adapter.Update(ctx, table, id, values)
		return err
	})
	return ok, err
}

func (obs *ObservableAdapter) Delete(ctx context.Context, table string, id int64) (bool, error) {
	var ok bool
	err := obs.observe(ctx, "delete", table, func(ctx context.Context) error {
		var err error
		ok, err = obs.adapter.Delete(ctx, table, id)
		return err
	})
	return ok, err
}

func (obs *ObservableAdapter) GetByID(ctx context.Context, table string, id int64, columns []string) (*schema.Row, error) {
	var row *schema.Row
	err := obs.observe(ctx, "get_by_id", table, func(ctx context.Context) error {
		var err error
		row, err = obs.adapter.GetByID(ctx, table, id, columns)
		return err
	})
	return row, err
}
