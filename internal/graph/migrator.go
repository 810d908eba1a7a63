// Package graph migrates warehouse rows into the graph store as nodes
// and relationships, in resumable offset-paged batches of cypher
// statements.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/MickeyJ/fao-api-manager-sub001/internal/dataset"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/logging"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/store"
)

// State is the migrator's phase. FAILED is reachable from any state.
type State int

const (
	StateCounting State = iota
	StateStreaming
	StateVerifying
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCounting:
		return "counting"
	case StateStreaming:
		return "streaming"
	case StateVerifying:
		return "verifying"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Mode selects the statement shape a relation builds. It is a run
// parameter, never inferred from destination state.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
)

// ParseMode validates an operator-supplied mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCreate, ModeUpdate:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid mode %q: must be create or update", s)
	}
}

// RowSource reads warehouse rows. Satisfied by source.Pool.
type RowSource interface {
	CountRows(ctx context.Context, query string) (int64, error)
	FetchPage(ctx context.Context, query string, limit int, offset int64) ([]dataset.Row, error)
	LoadRows(ctx context.Context, query string) ([]dataset.Row, error)
}

// Executor runs statement batches against the graph store. A batch
// executes in one transaction.
type Executor interface {
	ExecBatch(ctx context.Context, stmts []Statement) error
	QueryCount(ctx context.Context, stmt Statement) (int64, error)
}

// EventSink receives per-batch diagnostics. Satisfied by
// store.EventRecorder; implementations must never return errors.
type EventSink interface {
	Record(ctx context.Context, ev store.ProgressEvent)
}

// MigrationError carries the offset a rerun should resume from.
type MigrationError struct {
	Relation string
	State    State
	Offset   int64
	Err      error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migrating %s (%s, resume offset %d): %v", e.Relation, e.State, e.Offset, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// RunOptions parameterize one migration run.
type RunOptions struct {
	Mode        Mode
	StartOffset int64
	BatchSize   int
}

// RunResult summarizes a finished run.
type RunResult struct {
	Relation         string
	TotalRecords     int64
	RecordsProcessed int64
	Batches          int
	Duration         time.Duration
}

// Migrator drives one relation's rows through the state machine:
// counting, streaming, verifying.
type Migrator struct {
	source   RowSource
	executor Executor
	events   EventSink
	state    State
}

func NewMigrator(source RowSource, executor Executor, events EventSink) *Migrator {
	return &Migrator{source: source, executor: executor, events: events, state: StateCounting}
}

// State returns the migrator's current phase.
func (m *Migrator) State() State {
	return m.state
}

// Run migrates rel's rows as relationship batches. On failure the
// returned error embeds the last safe resume offset; rows committed
// before that offset stay committed.
func (m *Migrator) Run(ctx context.Context, rel Relation, opts RunOptions) (*RunResult, error) {
	start := time.Now()
	res := &RunResult{Relation: rel.Name()}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5000
	}
	if opts.Mode == "" {
		opts.Mode = ModeCreate
	}

	m.state = StateCounting
	total, err := m.source.CountRows(ctx, rel.CountQuery())
	if err != nil {
		m.state = StateFailed
		return nil, &MigrationError{Relation: rel.Name(), State: StateCounting, Offset: opts.StartOffset, Err: err}
	}
	res.TotalRecords = total
	logging.Info("Relation %s: %d records to migrate", rel.Name(), total)

	offset := opts.StartOffset
	if offset > 0 && total > 0 {
		logging.Info("Resuming %s at offset %d (%.1f%% done)", rel.Name(), offset, 100*float64(offset)/float64(total))
	}

	m.state = StateStreaming
	batch := 0
	for offset < total {
		if err := ctx.Err(); err != nil {
			m.state = StateFailed
			logging.Warn("Relation %s interrupted, resume from offset %d", rel.Name(), offset)
			return res, &MigrationError{Relation: rel.Name(), State: StateStreaming, Offset: offset, Err: err}
		}

		selectStart := time.Now()
		page, err := m.source.FetchPage(ctx, rel.PageQuery(), opts.BatchSize, offset)
		if err != nil {
			m.state = StateFailed
			return res, &MigrationError{Relation: rel.Name(), State: StateStreaming, Offset: offset, Err: err}
		}
		selectDur := time.Since(selectStart)

		// The count can go stale under us; an empty page means the
		// rows are gone, not that something broke.
		if len(page) == 0 {
			logging.Debug("Relation %s: empty page at offset %d, stopping", rel.Name(), offset)
			break
		}

		stmts, err := rel.BuildStatements(page, opts.Mode)
		if err != nil {
			m.state = StateFailed
			return res, &MigrationError{Relation: rel.Name(), State: StateStreaming, Offset: offset, Err: err}
		}

		insertStart := time.Now()
		if err := m.executor.ExecBatch(ctx, stmts); err != nil {
			m.state = StateFailed
			logging.Error("Relation %s batch failed, resume from offset %d", rel.Name(), offset)
			return res, &MigrationError{Relation: rel.Name(), State: StateStreaming, Offset: offset, Err: err}
		}
		insertDur := time.Since(insertStart)

		batch++
		offset += int64(len(page))
		res.RecordsProcessed += int64(len(page))
		res.Batches = batch

		m.emit(ctx, store.ProgressEvent{
			MigrationType:     "relationship",
			TableName:         rel.Table(),
			RelationshipType:  rel.Name(),
			BatchNumber:       batch,
			BatchSize:         len(page),
			RecordsProcessed:  int64(len(page)),
			SelectDurationMS:  selectDur.Milliseconds(),
			InsertDurationMS:  insertDur.Milliseconds(),
			TotalDurationMS:   (selectDur + insertDur).Milliseconds(),
			CumulativeRecords: offset,
		})

		// A short page means the source is exhausted even if the
		// stale count says otherwise; do not fetch past it.
		if len(page) < opts.BatchSize {
			break
		}
	}

	m.state = StateVerifying
	if err := m.verify(ctx, rel.VerifyChecks()); err != nil {
		m.state = StateFailed
		return res, &MigrationError{Relation: rel.Name(), State: StateVerifying, Offset: offset, Err: err}
	}

	m.state = StateDone
	res.Duration = time.Since(start)
	logging.Info("Relation %s: migrated %d records in %d batches (%s)",
		rel.Name(), res.RecordsProcessed, res.Batches, res.Duration.Round(time.Second))
	return res, nil
}

// RunNodes migrates a node set. Node identity has no natural batching
// boundary here, so the whole set executes as one bulk statement in a
// single transaction.
func (m *Migrator) RunNodes(ctx context.Context, nodes NodeSet) (*RunResult, error) {
	start := time.Now()
	res := &RunResult{Relation: nodes.Name()}

	m.state = StateCounting
	rows, err := m.source.LoadRows(ctx, nodes.Query())
	if err != nil {
		m.state = StateFailed
		return nil, &MigrationError{Relation: nodes.Name(), State: StateCounting, Err: err}
	}
	res.TotalRecords = int64(len(rows))

	m.state = StateStreaming
	stmts, err := nodes.BuildStatements(rows)
	if err != nil {
		m.state = StateFailed
		return res, &MigrationError{Relation: nodes.Name(), State: StateStreaming, Err: err}
	}

	insertStart := time.Now()
	if err := m.executor.ExecBatch(ctx, stmts); err != nil {
		m.state = StateFailed
		return res, &MigrationError{Relation: nodes.Name(), State: StateStreaming, Err: err}
	}
	res.RecordsProcessed = int64(len(rows))
	res.Batches = 1

	m.emit(ctx, store.ProgressEvent{
		MigrationType:     "node",
		TableName:         nodes.Name(),
		BatchNumber:       1,
		BatchSize:         len(rows),
		RecordsProcessed:  int64(len(rows)),
		InsertDurationMS:  time.Since(insertStart).Milliseconds(),
		TotalDurationMS:   time.Since(start).Milliseconds(),
		CumulativeRecords: int64(len(rows)),
	})

	m.state = StateVerifying
	if err := m.verify(ctx, nodes.VerifyChecks()); err != nil {
		m.state = StateFailed
		return res, &MigrationError{Relation: nodes.Name(), State: StateVerifying, Err: err}
	}

	m.state = StateDone
	res.Duration = time.Since(start)
	logging.Info("Nodes %s: created %d in one transaction (%s)",
		nodes.Name(), res.RecordsProcessed, res.Duration.Round(time.Second))
	return res, nil
}

// verify runs read-only checks against the graph. A failed check
// raises but nothing is undone; migrated data stays in place for
// operator follow-up.
func (m *Migrator) verify(ctx context.Context, checks []VerifyCheck) error {
	for _, check := range checks {
		got, err := m.executor.QueryCount(ctx, check.Statement)
		if err != nil {
			return fmt.Errorf("verification query %s: %w", check.Name, err)
		}
		logging.Info("Verify %s: %d", check.Name, got)
		if check.Min > 0 && got < check.Min {
			return fmt.Errorf("verification %s: got %d, expected at least %d", check.Name, got, check.Min)
		}
	}
	return nil
}

func (m *Migrator) emit(ctx context.Context, ev store.ProgressEvent) {
	if m.events != nil {
		m.events.Record(ctx, ev)
	}
}
