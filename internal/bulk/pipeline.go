package bulk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/raaihank/agi-sentinel/internal/config"
	"github.com/raaihank/agi-sentinel/internal/sentinel"
)

// Pipeline scans the text columns of tabular files and writes a copy with
// redacted columns added
type Pipeline struct {
	scanner Scanner
	config  config.BulkConfig
	logger  *zap.Logger
	limiter *rate.Limiter
	now     func() time.Time
}

// NewPipeline creates a new bulk pipeline
func NewPipeline(scanner Scanner, cfg config.BulkConfig, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.GetDefaults().Bulk.BatchSize
	}
	if cfg.OutputSuffix == "" {
		cfg.OutputSuffix = config.GetDefaults().Bulk.OutputSuffix
	}
	cfg.Workers = config.ClampWorkers(cfg.Workers)

	p := &Pipeline{
		scanner: scanner,
		config:  cfg,
		logger:  logger.With(zap.String("component", "bulk")),
		now:     time.Now,
	}
	if cfg.RowsPerSecond > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RowsPerSecond), cfg.RowsPerSecond)
	}
	return p
}

// Config returns the effective pipeline configuration
func (p *Pipeline) Config() config.BulkConfig {
	return p.config
}

// IsOutput reports whether path looks like a file this pipeline wrote
func (p *Pipeline) IsOutput(path string) bool {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return strings.HasSuffix(base, p.config.OutputSuffix)
}

// ProcessFile scans a CSV, JSON lines or Parquet file and writes the
// shielded copy next to it. An empty column list scans every column.
func (p *Pipeline) ProcessFile(ctx context.Context, path string, columns []string) (*Result, error) {
	return p.ProcessFileTo(ctx, path, "", columns)
}

// ProcessFileTo is ProcessFile with an explicit output path
func (p *Pipeline) ProcessFileTo(ctx context.Context, path, output string, columns []string) (*Result, error) {
	start := p.now()
	format := DetectFileFormat(path)
	if output == "" {
		output = OutputPath(path, p.config.OutputSuffix)
	}

	result := &Result{
		Status:       StatusCompleted,
		InputFile:    path,
		Format:       format,
		StatusCounts: map[sentinel.Status]int{},
		Timestamp:    start,
	}

	fail := func(err error) (*Result, error) {
		result.Status = StatusError
		result.Error = err.Error()
		result.Duration = p.now().Sub(start)
		p.logger.Error("Bulk scan failed", zap.String("file", path), zap.Error(err))
		return result, err
	}

	if _, err := os.Stat(path); err != nil {
		return fail(fmt.Errorf("file not found: %s", path))
	}
	if format == FormatUnknown {
		return fail(fmt.Errorf("unsupported file format: %s", path))
	}

	src, err := openSource(path, format)
	if err != nil {
		return fail(err)
	}
	defer src.Close()

	header := src.Header()
	indexes, err := selectColumns(header, columns)
	if err != nil {
		return fail(err)
	}
	for _, i := range indexes {
		result.ColumnsShielded = append(result.ColumnsShielded, header[i])
	}

	p.logger.Info("Starting bulk scan",
		zap.String("file", path),
		zap.String("format", string(format)),
		zap.Strings("columns", result.ColumnsShielded),
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("workers", p.config.Workers))

	out, err := createSink(output, format, header, result.ColumnsShielded)
	if err != nil {
		return fail(err)
	}

	if err := p.processBatches(ctx, src, out, indexes, result); err != nil {
		out.Close()
		os.Remove(output)
		return fail(err)
	}
	if err := out.Close(); err != nil {
		return fail(fmt.Errorf("failed to write output: %w", err))
	}

	result.OutputFile = output
	result.Duration = p.now().Sub(start)

	p.logger.Info("Bulk scan completed",
		zap.String("output", output),
		zap.Int("rows_processed", result.RowsProcessed),
		zap.Int("rows_skipped", result.RowsSkipped),
		zap.Int("total_incidents", result.TotalIncidents),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// processBatches reads, scans and writes rows batch by batch
func (p *Pipeline) processBatches(ctx context.Context, src source, out sink, indexes []int, result *Result) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := p.readBatch(src, result)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := p.scanBatch(ctx, batch, indexes); err != nil {
			return err
		}

		for _, row := range batch {
			if err := out.WriteRow(row); err != nil {
				return fmt.Errorf("failed to write row: %w", err)
			}
			result.RowsProcessed++
			result.TotalIncidents += row.incidents
			for _, status := range row.statuses {
				result.StatusCounts[status]++
			}
		}

		p.logger.Debug("Batch processed",
			zap.Int("batch_size", len(batch)),
			zap.Int("rows_processed", result.RowsProcessed))
	}
}

func (p *Pipeline) readBatch(src source, result *Result) ([]*Row, error) {
	batch := make([]*Row, 0, p.config.BatchSize)
	for len(batch) < p.config.BatchSize {
		row, err := src.Next()
		if err == io.EOF {
			break
		}
		if errors.Is(err, errSkipRow) {
			p.logger.Warn("Skipping malformed row", zap.Error(err))
			result.RowsSkipped++
			continue
		}
		if err != nil {
			return nil, err
		}
		batch = append(batch, row)
	}
	return batch, nil
}

// scanBatch scans the selected cells of every row on the worker pool.
// Each row is owned by exactly one goroutine.
func (p *Pipeline) scanBatch(ctx context.Context, batch []*Row, indexes []int) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Workers)

	for _, row := range batch {
		row := row
		g.Go(func() error {
			if p.limiter != nil {
				if err := p.limiter.Wait(gctx); err != nil {
					return err
				}
			}
			return p.scanRow(gctx, row, indexes)
		})
	}

	return g.Wait()
}

func (p *Pipeline) scanRow(ctx context.Context, row *Row, indexes []int) error {
	row.Shielded = make([]string, len(indexes))
	row.statuses = make([]sentinel.Status, len(indexes))

	for j, i := range indexes {
		var cell string
		if i < len(row.Values) {
			cell = row.Values[i]
		}

		res, err := p.scanner.ScanContext(ctx, cell)
		if err != nil && ctx.Err() != nil {
			return err
		}
		// a failed cell is written empty, never unredacted
		row.Shielded[j] = res.ProcessedText
		row.statuses[j] = res.Status
		row.incidents += len(res.Incidents)
	}
	return nil
}

// selectColumns maps column names to header indexes. No names selects all.
func selectColumns(header, columns []string) ([]int, error) {
	if len(columns) == 0 {
		indexes := make([]int, len(header))
		for i := range header {
			indexes[i] = i
		}
		return indexes, nil
	}

	position := make(map[string]int, len(header))
	for i, name := range header {
		if _, ok := position[name]; !ok {
			position[name] = i
		}
	}

	var indexes []int
	var missing []string
	for _, col := range columns {
		i, ok := position[col]
		if !ok {
			missing = append(missing, col)
			continue
		}
		indexes = append(indexes, i)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("columns not found: %s", strings.Join(missing, ", "))
	}
	return indexes, nil
}
