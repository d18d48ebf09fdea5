package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds configuration for the audit export service.
type Config struct {
	// RetentionDays is how long audit entries are kept after export.
	// Default: 31 days.
	RetentionDays int

	// ArchiveDir is where monthly workbooks are written.
	// Default: "archive".
	ArchiveDir string

	// ExportOnStart runs an export immediately on service start.
	ExportOnStart bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 31,
		ArchiveDir:    "archive",
	}
}

// TableExporter supplies the exportable tables and their rows.
type TableExporter interface {
	GetTableNames(ctx context.Context) ([]string, error)
	GetTableData(ctx context.Context, tableName string) ([]map[string]interface{}, []string, error)
}

// EntryCleaner removes audit entries past the retention window.
type EntryCleaner interface {
	DeleteOldEntries(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Service exports booking and audit tables into a monthly workbook, then
// trims entries past retention. Export runs on the first of each month.
type Service struct {
	config   *Config
	exporter TableExporter
	writer   func() ExcelWriter
	cleaner  EntryCleaner
	logger   *zerolog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewService creates a new audit export service.
func NewService(config *Config, exporter TableExporter, writerFactory func() ExcelWriter, cleaner EntryCleaner, logger *zerolog.Logger) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = 31
	}
	if config.ArchiveDir == "" {
		config.ArchiveDir = "archive"
	}

	return &Service{
		config:   config,
		exporter: exporter,
		writer:   writerFactory,
		cleaner:  cleaner,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the export scheduler.
func (s *Service) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	if s.config.ExportOnStart {
		go s.RunExportAndCleanup()
	}

	s.wg.Add(1)
	go s.loop()

	s.logger.Info().Int("retention_days", s.config.RetentionDays).
		Str("archive_dir", s.config.ArchiveDir).Msg("audit service started")
}

// Stop gracefully stops the service.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	s.logger.Info().Msg("audit service stopped")
}

func (s *Service) loop() {
	defer s.wg.Done()

	nextRun := s.nextFirstOfMonth()
	timer := time.NewTimer(time.Until(nextRun))
	defer timer.Stop()

	s.logger.Info().Time("next_run", nextRun).Msg("audit export scheduled")

	for {
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
			s.RunExportAndCleanup()

			nextRun = s.nextFirstOfMonth()
			timer.Reset(time.Until(nextRun))
			s.logger.Info().Time("next_run", nextRun).Msg("audit export scheduled")
		}
	}
}

func (s *Service) nextFirstOfMonth() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month()+1, 1, 0, 1, 0, 0, now.Location())
}

// RunExportAndCleanup performs the export and cleanup immediately.
func (s *Service) RunExportAndCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if err := s.exportData(ctx); err != nil {
		s.logger.Error().Err(err).Msg("audit export failed")
	}
	if err := s.cleanupOldData(ctx); err != nil {
		s.logger.Error().Err(err).Msg("audit cleanup failed")
	}
}

func (s *Service) exportData(ctx context.Context) error {
	const op = "audit.Service.exportData"

	tables, err := s.exporter.GetTableNames(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(tables) == 0 {
		s.logger.Info().Msg("no tables to export")
		return nil
	}

	excel := s.writer()
	defer excel.Close()

	for _, tableName := range tables {
		data, columns, err := s.exporter.GetTableData(ctx, tableName)
		if err != nil {
			s.logger.Error().Err(err).Str("table", tableName).Msg("failed to read table")
			continue
		}
		if err := excel.AddSheet(tableName); err != nil {
			s.logger.Error().Err(err).Str("table", tableName).Msg("failed to add sheet")
			continue
		}
		if err := excel.WriteHeader(columns); err != nil {
			s.logger.Error().Err(err).Str("table", tableName).Msg("failed to write header")
			continue
		}

		for _, row := range data {
			rowData := make([]interface{}, len(columns))
			for i, col := range columns {
				rowData[i] = row[col]
			}
			if err := excel.WriteRow(rowData); err != nil {
				s.logger.Error().Err(err).Str("table", tableName).Msg("failed to write row")
			}
		}
		s.logger.Debug().Str("table", tableName).Int("rows", len(data)).Msg("exported table")
	}

	if err := os.MkdirAll(s.config.ArchiveDir, 0o755); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	path := filepath.Join(s.config.ArchiveDir, FilenameForPreviousMonth(time.Now()))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	if err := excel.Save(f); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info().Str("path", path).Msg("audit workbook written")
	return nil
}

func (s *Service) cleanupOldData(ctx context.Context) error {
	const op = "audit.Service.cleanupOldData"

	if s.cleaner == nil {
		return nil
	}

	retention := time.Duration(s.config.RetentionDays) * 24 * time.Hour
	deleted, err := s.cleaner.DeleteOldEntries(ctx, retention)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Info().Int64("deleted", deleted).
		Int("retention_days", s.config.RetentionDays).Msg("old audit entries removed")
	return nil
}

// ExportNow triggers an immediate export.
func (s *Service) ExportNow() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	return s.exportData(ctx)
}

// FilenameForPreviousMonth names the workbook after the month that just
// ended.
func FilenameForPreviousMonth(now time.Time) string {
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	prev := firstOfMonth.AddDate(0, 0, -1)
	return fmt.Sprintf("bookings_%04d_%02d.xlsx", prev.Year(), int(prev.Month()))
}
