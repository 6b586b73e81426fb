// Package questdb records the decoded signal values into QuestDB.
package questdb

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/squadracorsepolito/acmedash/dbc"
	"github.com/squadracorsepolito/acmedash/internal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder takes snapshots of the messages updated since the previous
// snapshot and hands them to a writer goroutine.
// Snapshot must be called from the goroutine that drives the bus.
type Recorder struct {
	tel *internal.Telemetry

	sink Sink

	messages []*dbc.Message
	lastSeen []uint64

	batches chan *Batch
	wg      sync.WaitGroup

	recordedRows     atomic.Uint64
	droppedSnapshots atomic.Uint64
	writeErrors      atomic.Uint64

	recordedRowsCounter     metric.Int64Counter
	droppedSnapshotsCounter metric.Int64Counter
}

// NewRecorder builds a recorder for the given messages.
func NewRecorder(cfg *Config, sink Sink, messages []*dbc.Message) *Recorder {
	if sink == nil {
		panic("sink is nil")
	}

	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	tel := internal.NewTelemetry("recorder", "questdb")

	return &Recorder{
		tel: tel,

		sink: sink,

		messages: messages,
		lastSeen: make([]uint64, len(messages)),

		batches: make(chan *Batch, max(cfg.QueueSize, 1)),

		recordedRowsCounter:     tel.NewCounter("recorded_rows"),
		droppedSnapshotsCounter: tel.NewCounter("dropped_snapshots"),
	}
}

// Start runs the writer until Close is called.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.runWriter(ctx)
}

func (r *Recorder) runWriter(ctx context.Context) {
	defer r.wg.Done()

	for batch := range r.batches {
		r.write(ctx, batch)
	}
}

func (r *Recorder) write(ctx context.Context, batch *Batch) {
	ctx, span := r.tel.NewTrace(ctx, "write snapshot")
	defer span.End()

	if err := r.sink.Write(ctx, batch); err != nil {
		errCount := r.writeErrors.Add(1)
		if errCount == 1 || errCount%100 == 0 {
			r.tel.LogError("failed to write snapshot", err, "write_errors", errCount)
		}
		return
	}

	rows := len(batch.Rows)
	span.SetAttributes(attribute.Int("recorded_rows", rows))

	r.recordedRows.Add(uint64(rows))
	r.recordedRowsCounter.Add(ctx, int64(rows))
}

// Snapshot queues the values of the messages received since the last
// snapshot. It never blocks: when the writer is behind the snapshot is
// dropped. It returns the number of queued rows.
func (r *Recorder) Snapshot(ts time.Time) int {
	batch := &Batch{Timestamp: ts}

	for idx, msg := range r.messages {
		rxCount := msg.RxCount()
		if rxCount == r.lastSeen[idx] {
			continue
		}
		r.lastSeen[idx] = rxCount

		for _, sig := range msg.Signals() {
			batch.AddRow(SignalRow(msg, sig))
		}
	}

	if len(batch.Rows) == 0 {
		return 0
	}

	select {
	case r.batches <- batch:
		return len(batch.Rows)
	default:
	}

	dropped := r.droppedSnapshots.Add(1)
	r.droppedSnapshotsCounter.Add(context.Background(), 1)

	if dropped == 1 || dropped%100 == 0 {
		r.tel.LogWarn("writer is behind, dropping snapshots", "dropped_snapshots", dropped)
	}

	return 0
}

// RecordedRows returns the number of rows accepted by the sink.
func (r *Recorder) RecordedRows() uint64 {
	return r.recordedRows.Load()
}

// DroppedSnapshots returns the number of snapshots lost on a full queue.
func (r *Recorder) DroppedSnapshots() uint64 {
	return r.droppedSnapshots.Load()
}

// WriteErrors returns the number of snapshots the sink failed to write.
func (r *Recorder) WriteErrors() uint64 {
	return r.writeErrors.Load()
}

// Close drains the queued snapshots and closes the sink.
// Snapshot must not be called afterwards.
func (r *Recorder) Close(ctx context.Context) error {
	close(r.batches)
	r.wg.Wait()

	return r.sink.Close(ctx)
}
