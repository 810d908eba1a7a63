package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/MickeyJ/fao-api-manager-sub001/internal/checkpoint"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/config"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/dataset"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/exitcodes"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/graph"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/logging"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/pipeline"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/progress"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/render"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/store"
	"github.com/MickeyJ/fao-api-manager-sub001/internal/writer"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "faomigrate",
		Usage:   "Resumable FAO dataset migration into the warehouse and graph store",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to configuration file",
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Value: "info",
				Usage: "Log verbosity level (debug, info, warn, error)",
			},
		},
		Before: func(c *cli.Context) error {
			level, err := logging.ParseLevel(c.String("verbosity"))
			if err != nil {
				return err
			}
			logging.SetLevel(level)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Migrate datasets into the warehouse",
				Action: runDatasets,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "dataset",
						Aliases: []string{"d"},
						Usage:   "Dataset to migrate (repeatable, default: all)",
					},
					&cli.IntFlag{
						Name:  "chunk-size",
						Usage: "Rows per chunk (default: adaptive from row width)",
					},
				},
			},
			{
				Name:  "graph",
				Usage: "Graph store migrations",
				Subcommands: []*cli.Command{
					{
						Name:   "nodes",
						Usage:  "Migrate a node label in one bulk transaction",
						Action: runGraphNodes,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "label",
								Required: true,
								Usage:    "Node label to migrate",
							},
						},
					},
					{
						Name:   "migrate",
						Usage:  "Migrate a relationship in offset-paged batches",
						Action: runGraphRelation,
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:     "relation",
								Aliases:  []string{"r"},
								Required: true,
								Usage:    "Relationship label to migrate",
							},
							&cli.StringFlag{
								Name:  "mode",
								Value: "create",
								Usage: "Statement mode: create or update",
							},
							&cli.Int64Flag{
								Name:  "start-offset",
								Usage: "Resume from this row offset",
							},
							&cli.IntFlag{
								Name:  "batch-size",
								Usage: "Rows per page (default from config)",
							},
						},
					},
					{
						Name:   "list",
						Usage:  "List known node labels and relationships",
						Action: listGraphMigrations,
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show warehouse-side migration progress",
				Action: showStatus,
			},
			{
				Name:   "verify",
				Usage:  "Compare source and warehouse row counts per dataset",
				Action: verifyWarehouse,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "dataset",
						Aliases: []string{"d"},
						Usage:   "Dataset to verify (repeatable, default: all)",
					},
				},
			},
			{
				Name:   "history",
				Usage:  "List recent runs, or details of one run",
				Action: showHistory,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "run",
						Usage: "Show details for a specific run ID",
					},
					&cli.IntFlag{
						Name:  "limit",
						Value: 10,
						Usage: "Number of runs to list",
					},
				},
			},
			{
				Name:   "reset",
				Usage:  "Clear a table's saved progress so the next run starts over",
				Action: resetProgress,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "table",
						Required: true,
						Usage:    "Table name to reset",
					},
				},
			},
			{
				Name:   "datasets",
				Usage:  "List known datasets",
				Action: listDatasets,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitcodes.FromError(err))
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM. The
// in-flight chunk still commits or rolls back whole; cancellation is
// observed between chunks.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted. Finishing current chunk...")
		cancel()
	}()

	return ctx, cancel
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, exitcodes.NewExitError(err, exitcodes.ConfigError)
	}
	return cfg, nil
}

func runDatasets(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	names := c.StringSlice("dataset")
	if len(names) == 0 {
		names = dataset.Names()
	}
	datasets := make([]dataset.Dataset, 0, len(names))
	for _, name := range names {
		ds, err := dataset.Get(name)
		if err != nil {
			return exitcodes.NewExitError(err, exitcodes.ConfigError)
		}
		datasets = append(datasets, ds)
	}

	ctx, cancel := signalContext()
	defer cancel()

	mgr := store.NewManager(cfg)
	defer mgr.Close()

	warehouse, err := mgr.Warehouse(ctx)
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.ConnectionError)
	}
	progressStore := progress.NewStore(warehouse)
	target := store.NewWarehouseTarget(mgr, progressStore)

	var loader pipeline.RowLoader
	if cfg.Source.CSVDir != "" {
		loader = pipeline.NewCSVLoader(cfg.Source.CSVDir)
	} else {
		src, err := mgr.Source(ctx)
		if err != nil {
			return exitcodes.NewExitError(err, exitcodes.ConnectionError)
		}
		loader = pipeline.NewDBLoader(src)
	}

	history, err := checkpoint.New(cfg.Migration.DataDir)
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.StateError)
	}
	defer history.Close()

	runID, err := history.CreateRun("dataset")
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.StateError)
	}

	opts := []writer.Option{
		writer.WithProgress(func(table string, total, resumed int64) writer.Counter {
			return progress.NewTracker(table, total, resumed)
		}),
	}
	if c.Int("chunk-size") > 0 {
		opts = append(opts, writer.WithChunkSize(c.Int("chunk-size")))
	} else if cfg.Migration.ChunkSize > 0 {
		opts = append(opts, writer.WithChunkSize(cfg.Migration.ChunkSize))
	}

	p := pipeline.New(loader, writer.New(target, opts...))

	var runErr error
	for _, ds := range datasets {
		res, err := p.Run(ctx, ds)
		if err != nil {
			recordResult(history, runID, ds.Name(), res, err)
			runErr = err
			break
		}
		recordResult(history, runID, ds.Name(), res, nil)
		fmt.Println(render.WriteSummary(res))
	}

	status := "completed"
	if runErr != nil {
		status = "failed"
	}
	if err := history.CompleteRun(runID, status); err != nil {
		logging.Warn("Recording run completion: %v", err)
	}

	return runErr
}

func recordResult(history *checkpoint.State, runID, name string, res *writer.Result, runErr error) {
	rec := checkpoint.DatasetResult{RunID: runID, Dataset: name, Status: "completed"}
	if res != nil {
		rec.Total = res.Total
		rec.Inserted = res.Inserted
		rec.Conflicts = res.Conflicts
		rec.Resumed = res.Resumed
	}
	if runErr != nil {
		rec.Status = "failed"
		rec.Error = runErr.Error()
	}
	if err := history.RecordDatasetResult(rec); err != nil {
		logging.Warn("Recording dataset result: %v", err)
	}
}

func newGraphMigrator(ctx context.Context, mgr *store.Manager) (*graph.Migrator, error) {
	warehouse, err := mgr.Warehouse(ctx)
	if err != nil {
		return nil, exitcodes.NewExitError(err, exitcodes.ConnectionError)
	}

	// The graph path reads its rows back out of the warehouse tables
	// the dataset path populated.
	src, err := mgr.WarehouseReader(ctx)
	if err != nil {
		return nil, exitcodes.NewExitError(err, exitcodes.ConnectionError)
	}

	if _, err := mgr.Graph(ctx); err != nil {
		return nil, exitcodes.NewExitError(err, exitcodes.ConnectionError)
	}

	return graph.NewMigrator(src, graph.NewPGExecutor(mgr), store.NewEventRecorder(warehouse)), nil
}

func runGraphRelation(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	graph.RegisterDefaults(cfg.Graph.GraphName)

	rel, err := graph.GetRelation(c.String("relation"))
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.ConfigError)
	}
	mode, err := graph.ParseMode(c.String("mode"))
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.ConfigError)
	}

	ctx, cancel := signalContext()
	defer cancel()

	mgr := store.NewManager(cfg)
	defer mgr.Close()

	m, err := newGraphMigrator(ctx, mgr)
	if err != nil {
		return err
	}

	batchSize := c.Int("batch-size")
	if batchSize == 0 {
		batchSize = cfg.Migration.BatchSize
	}

	res, err := m.Run(ctx, rel, graph.RunOptions{
		Mode:        mode,
		StartOffset: c.Int64("start-offset"),
		BatchSize:   batchSize,
	})
	if err != nil {
		return err
	}
	logging.Info("Relation %s done: %d records in %d batches", res.Relation, res.RecordsProcessed, res.Batches)
	return nil
}

func runGraphNodes(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	graph.RegisterDefaults(cfg.Graph.GraphName)

	nodes, err := graph.GetNodeSet(c.String("label"))
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.ConfigError)
	}

	ctx, cancel := signalContext()
	defer cancel()

	mgr := store.NewManager(cfg)
	defer mgr.Close()

	m, err := newGraphMigrator(ctx, mgr)
	if err != nil {
		return err
	}

	res, err := m.RunNodes(ctx, nodes)
	if err != nil {
		return err
	}
	logging.Info("Nodes %s done: %d created", res.Relation, res.RecordsProcessed)
	return nil
}

func listGraphMigrations(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	graph.RegisterDefaults(cfg.Graph.GraphName)

	fmt.Println("Node labels:   " + strings.Join(graph.NodeSetNames(), ", "))
	fmt.Println("Relationships: " + strings.Join(graph.RelationNames(), ", "))
	return nil
}

func showStatus(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	mgr := store.NewManager(cfg)
	defer mgr.Close()

	warehouse, err := mgr.Warehouse(ctx)
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.ConnectionError)
	}

	entries, err := progress.NewStore(warehouse).List(ctx)
	if err != nil {
		return err
	}
	fmt.Print(render.ProgressTable(entries))

	history, err := checkpoint.New(cfg.Migration.DataDir)
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.StateError)
	}
	defer history.Close()

	last, err := history.GetLastRun()
	if err != nil {
		return err
	}
	if last != nil {
		fmt.Print(render.RunHistory([]checkpoint.Run{*last}))
		results, err := history.DatasetResults(last.ID)
		if err != nil {
			return err
		}
		fmt.Print(render.RunDetail(results))
	}
	return nil
}

// verifyWarehouse compares source-side and warehouse-side row counts.
// The two can legitimately differ when source rows share a surrogate
// key, so insert-or-ignore collapsed them; the check flags tables
// where the warehouse holds fewer rows than the distinct source keys
// can explain, which in practice means a short load.
func verifyWarehouse(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	names := c.StringSlice("dataset")
	if len(names) == 0 {
		names = dataset.Names()
	}

	ctx, cancel := signalContext()
	defer cancel()

	mgr := store.NewManager(cfg)
	defer mgr.Close()

	warehouse, err := mgr.Warehouse(ctx)
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.ConnectionError)
	}

	var loader pipeline.RowLoader
	var src interface {
		CountRows(ctx context.Context, query string) (int64, error)
	}
	if cfg.Source.CSVDir != "" {
		loader = pipeline.NewCSVLoader(cfg.Source.CSVDir)
	} else {
		pool, err := mgr.Source(ctx)
		if err != nil {
			return exitcodes.NewExitError(err, exitcodes.ConnectionError)
		}
		src = pool
	}

	var mismatches []string
	for _, name := range names {
		ds, err := dataset.Get(name)
		if err != nil {
			return exitcodes.NewExitError(err, exitcodes.ConfigError)
		}

		var sourceCount int64
		if src != nil {
			// The migration queries select every row of their table,
			// so counting the table directly avoids wrapping an
			// ORDER BY subquery (which SQL Server rejects).
			sourceCount, err = src.CountRows(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", name))
		} else {
			var rows []dataset.Row
			rows, err = loader.Load(ctx, ds)
			sourceCount = int64(len(rows))
		}
		if err != nil {
			return fmt.Errorf("counting source rows for %s: %w", name, err)
		}

		destCount, err := store.CountTable(ctx, warehouse, name)
		if err != nil {
			return err
		}

		if destCount < sourceCount {
			logging.Warn("Verify %s: source=%d warehouse=%d", name, sourceCount, destCount)
			mismatches = append(mismatches, fmt.Sprintf("%s (source=%d warehouse=%d)", name, sourceCount, destCount))
		} else {
			logging.Info("Verify %s: source=%d warehouse=%d ok", name, sourceCount, destCount)
		}
	}

	if len(mismatches) > 0 {
		return exitcodes.NewExitError(
			fmt.Errorf("row count mismatch: %s", strings.Join(mismatches, "; ")),
			exitcodes.VerificationError)
	}
	return nil
}

func showHistory(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	history, err := checkpoint.New(cfg.Migration.DataDir)
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.StateError)
	}
	defer history.Close()

	if runID := c.String("run"); runID != "" {
		results, err := history.DatasetResults(runID)
		if err != nil {
			return err
		}
		fmt.Print(render.RunDetail(results))
		return nil
	}

	runs, err := history.ListRuns(c.Int("limit"))
	if err != nil {
		return err
	}
	fmt.Print(render.RunHistory(runs))
	return nil
}

func resetProgress(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	mgr := store.NewManager(cfg)
	defer mgr.Close()

	warehouse, err := mgr.Warehouse(ctx)
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.ConnectionError)
	}

	table := c.String("table")
	if err := progress.NewStore(warehouse).Reset(ctx, table); err != nil {
		return err
	}
	logging.Info("Progress for %s cleared; the next run starts from row 0", table)
	return nil
}

func listDatasets(c *cli.Context) error {
	for _, name := range dataset.Names() {
		fmt.Println(name)
	}
	return nil
}
