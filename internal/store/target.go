package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/MickeyJ/fao-api-manager-sub001/internal/progress"
)

// WarehouseTarget binds the chunked loader to the warehouse: each
// chunk's rows and its progress position commit in one transaction.
type WarehouseTarget struct {
	mgr      *Manager
	progress *progress.Store
}

func NewWarehouseTarget(mgr *Manager, progressStore *progress.Store) *WarehouseTarget {
	return &WarehouseTarget{mgr: mgr, progress: progressStore}
}

// ApplyChunk inserts records and advances the saved position
// atomically. If the insert succeeds but the commit fails, neither
// the rows nor the position survive, so a rerun replays the chunk.
func (t *WarehouseTarget) ApplyChunk(ctx context.Context, table string, columns []string, records [][]any, position, total int64) (int64, error) {
	var inserted int64
	err := t.mgr.WithWarehouseTx(ctx, func(tx pgx.Tx) error {
		n, err := InsertChunk(ctx, tx, table, columns, records)
		if err != nil {
			return err
		}
		inserted = n
		return t.progress.SaveChunk(ctx, tx, table, position, total)
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func (t *WarehouseTarget) Progress(ctx context.Context, table string) (*progress.Entry, error) {
	return t.progress.Get(ctx, table)
}

func (t *WarehouseTarget) MarkCompleted(ctx context.Context, table string, total int64) error {
	return t.progress.MarkCompleted(ctx, table, total)
}
