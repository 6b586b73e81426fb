package questdb

import (
	"context"
	"fmt"
	"math/big"
	"time"

	qdb "github.com/questdb/go-questdb-client/v3"
	"github.com/squadracorsepolito/acmedash/internal"
)

// Sink stores the batches produced by the recorder.
type Sink interface {
	Write(ctx context.Context, batch *Batch) error
	Close(ctx context.Context) error
}

var _ Sink = (*LineSenderSink)(nil)

// LineSenderSink writes batches to QuestDB over the ILP/HTTP protocol.
type LineSenderSink struct {
	tel *internal.Telemetry

	pool   *qdb.LineSenderPool
	sender qdb.LineSender
}

// NewLineSenderSink creates the sender pool and takes a sender from it.
func NewLineSenderSink(ctx context.Context, cfg *Config) (*LineSenderSink, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	pool, err := qdb.PoolFromOptions(
		qdb.WithAddress(cfg.Address),
		qdb.WithHttp(),
		qdb.WithAutoFlushRows(cfg.AutoFlushRows),
		qdb.WithRetryTimeout(cfg.RetryTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("questdb sender pool: %w", err)
	}

	sender, err := pool.Sender(ctx)
	if err != nil {
		pool.Close(ctx)
		return nil, fmt.Errorf("questdb sender: %w", err)
	}

	return &LineSenderSink{
		tel: internal.NewTelemetry("questdb", cfg.Address),

		pool:   pool,
		sender: sender,
	}, nil
}

// Write sends the rows of the batch and flushes them.
func (s *LineSenderSink) Write(ctx context.Context, batch *Batch) error {
	for _, row := range batch.Rows {
		query := s.sender.Table(row.Table)

		for _, symbol := range row.Symbols {
			query.Symbol(symbol.Name, symbol.Value)
		}

		for _, col := range row.Columns {
			switch col.Type {
			case ColumnTypeBool:
				query.BoolColumn(col.Name, col.Value.(bool))
			case ColumnTypeInt:
				query.Int64Column(col.Name, col.Value.(int64))
			case ColumnTypeLong:
				query.Long256Column(col.Name, col.Value.(*big.Int))
			case ColumnTypeFloat:
				query.Float64Column(col.Name, col.Value.(float64))
			case ColumnTypeString:
				query.StringColumn(col.Name, col.Value.(string))
			}
		}

		if err := query.At(ctx, batch.Timestamp); err != nil {
			return err
		}
	}

	return s.sender.Flush(ctx)
}

func (s *LineSenderSink) Close(ctx context.Context) error {
	if err := s.sender.Close(ctx); err != nil {
		s.tel.LogError("failed to close sender", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	select {
	case <-ctx.Done():
		return s.pool.Close(closeCtx)
	default:
		return s.pool.Close(ctx)
	}
}
