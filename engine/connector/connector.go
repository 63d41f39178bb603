// Package connector is the sync driver between the vPIC client and an
// external sync orchestrator. It declares the destination schema, turns the
// configured VIN list into table records, runs the connectivity self-test
// and drives a full sync as a stream of upsert and checkpoint operations.
//
// Work is strictly sequential. A VIN that fails to decode or fetch is logged
// and skipped; it never aborts the batch.
package connector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/WessleyAI/vinsync/engine/record"
	"github.com/WessleyAI/vinsync/pkg/fn"
	"github.com/WessleyAI/vinsync/pkg/metrics"
)

// SampleVIN is decoded by TestConnection when no VINs are configured.
const SampleVIN = "WBA3A5C51CF256651"

// ErrConnectionTest is returned by Update when the self-test fails.
var ErrConnectionTest = errors.New("connection test failed")

var tracer = otel.Tracer("engine/connector")

// Decoder decodes a VIN into a vehicle record.
type Decoder interface {
	Decode(ctx context.Context, vin string) (record.VehicleRecord, error)
}

// RecallFetcher lists the raw recall entries for a VIN.
type RecallFetcher interface {
	FetchRecalls(ctx context.Context, vin string) ([]record.RawRecall, error)
}

// State is the orchestrator's sync-state token. The connector keeps no
// incremental state, so it is always returned empty.
type State map[string]any

// Options configures a Connector.
type Options struct {
	VINs []string
	// Tables are the active table names. Empty means bmw_vehicles only.
	Tables  []string
	Metrics *metrics.Registry
	Logger  *slog.Logger
}

// Connector drives syncs for the configured VINs.
type Connector struct {
	vins    []string
	tables  []record.Table
	decoder Decoder
	recalls RecallFetcher
	mapper  *record.Mapper
	log     *slog.Logger

	mVINs     func(table, outcome string) *metrics.Counter
	mRecords  func(table string) *metrics.Counter
	mDuration func(table string) *metrics.Histogram
	mLastSync *metrics.Gauge
}

// New creates a Connector. Unknown names in opts.Tables are logged and
// dropped.
func New(dec Decoder, rf RecallFetcher, opts Options) *Connector {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "connector")

	met := opts.Metrics
	if met == nil {
		met = metrics.New()
	}

	names := opts.Tables
	if len(names) == 0 {
		names = []string{record.TableVehicles}
	}
	tables := fn.FilterMap(names, func(name string) (record.Table, bool) {
		t, ok := record.LookupTable(name)
		if !ok {
			log.Warn("ignoring unknown table", "table", name)
		}
		return t, ok
	})

	return &Connector{
		vins:    append([]string(nil), opts.VINs...),
		tables:  tables,
		decoder: dec,
		recalls: rf,
		mapper:  record.NewMapper(),
		log:     log,
		mVINs: func(table, outcome string) *metrics.Counter {
			return met.Counter(metrics.WithLabels("vinsync_vins_total", "table", table, "outcome", outcome), "VINs processed by table and outcome")
		},
		mRecords: func(table string) *metrics.Counter {
			return met.Counter(metrics.WithLabels("vinsync_records_total", "table", table), "Records produced by table")
		},
		mDuration: func(table string) *metrics.Histogram {
			return met.Histogram(metrics.WithLabels("vinsync_sync_duration_seconds", "table", table), "Table fetch duration", nil)
		},
		mLastSync: met.Gauge("vinsync_last_sync_timestamp", "Epoch of the last completed sync"),
	}
}

// TableSchema is the schema description handed to the orchestrator.
type TableSchema struct {
	Table      string            `json:"table"`
	PrimaryKey []string          `json:"primary_key"`
	Columns    map[string]string `json:"columns,omitempty"`
}

// Tables returns the active table definitions.
func (c *Connector) Tables() []record.Table {
	return append([]record.Table(nil), c.tables...)
}

// Schema describes the active tables.
func (c *Connector) Schema() []TableSchema {
	return fn.Map(c.tables, func(t record.Table) TableSchema {
		return TableSchema{Table: t.Name, PrimaryKey: t.PrimaryKey, Columns: t.ColumnTypes()}
	})
}

// FetchRecords returns the rows of table for every configured VIN, in VIN
// order, and the next state token. An unknown table yields no rows. The
// error is non-nil only when ctx ends mid-batch; the rows gathered so far
// are still returned.
func (c *Connector) FetchRecords(ctx context.Context, table string, _ State) ([]record.Record, State, error) {
	ctx, span := tracer.Start(ctx, "connector.FetchRecords")
	defer span.End()
	span.SetAttributes(attribute.String("table", table), attribute.Int("vins", len(c.vins)))

	start := time.Now()
	var (
		rows []record.Record
		err  error
	)
	switch table {
	case record.TableVehicles:
		var vs []record.VehicleRecord
		vs, err = c.Vehicles(ctx)
		rows = fn.Map(vs, record.VehicleRecord.Record)
	case record.TableRecalls:
		var rs []record.RecallRecord
		rs, err = c.Recalls(ctx)
		rows = fn.Map(rs, record.RecallRecord.Record)
	default:
		c.log.Warn("fetch for unknown table", "table", table)
		return []record.Record{}, State{}, nil
	}
	c.mDuration(table).Since(start)
	c.mRecords(table).Add(int64(len(rows)))
	span.SetAttributes(attribute.Int("records", len(rows)))
	return rows, State{}, err
}

// Vehicles decodes every configured VIN.
func (c *Connector) Vehicles(ctx context.Context) ([]record.VehicleRecord, error) {
	out := make([]record.VehicleRecord, 0, len(c.vins))
	for _, v := range c.vins {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rec, err := c.decoder.Decode(ctx, v)
		if err != nil {
			c.mVINs(record.TableVehicles, "error").Inc()
			c.log.Error("error processing VIN", "table", record.TableVehicles, "vin", v, "err", err)
			continue
		}
		c.mVINs(record.TableVehicles, "ok").Inc()
		out = append(out, rec)
	}
	return out, nil
}

// Recalls fetches and maps the recalls of every configured VIN, keeping the
// API order within a VIN.
func (c *Connector) Recalls(ctx context.Context) ([]record.RecallRecord, error) {
	var out []record.RecallRecord
	for _, v := range c.vins {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		raws, err := c.recalls.FetchRecalls(ctx, v)
		if err != nil {
			c.mVINs(record.TableRecalls, "error").Inc()
			c.log.Error("error fetching recalls for VIN", "table", record.TableRecalls, "vin", v, "err", err)
			continue
		}
		c.mVINs(record.TableRecalls, "ok").Inc()
		out = append(out, c.mapper.Recalls(v, raws)...)
	}
	return out, nil
}

// TestConnection decodes the first configured VIN (or SampleVIN) and
// reports whether that worked.
func (c *Connector) TestConnection(ctx context.Context) bool {
	v := SampleVIN
	if len(c.vins) > 0 {
		v = c.vins[0]
	}
	if _, err := c.decoder.Decode(ctx, v); err != nil {
		c.log.Error("connection test failed", "vin", v, "err", err)
		return false
	}
	return true
}
