package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"blustash/internal/blustash"
	"blustash/internal/burner"
	"blustash/internal/config"
	"blustash/internal/database"
	"blustash/internal/fs"
	"blustash/internal/hash"
	"blustash/internal/model"
)

// App is the application layer between the CLI and the core components.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the DB lifecycle on Close.
type App struct {
	cfg     *config.Config
	db      *database.SQLiteIndex
	fsmgr   blustash.FilesystemManager
	scanner *blustash.Scanner
	stager  *blustash.Stager
	burner  blustash.Burner
	logger  blustash.Logger
	logFile *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Scan", "Stage").
// The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	opID := time.Now().UTC().Format("20060102T150405Z") + "-" + operation
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	if cfg.DBPath == "" {
		logFile.Close()
		return nil, fmt.Errorf("db_path not configured")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := database.NewSQLiteIndex(cfg.DBPath)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening index: %w", err)
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		logFile.Close()
		return nil, fmt.Errorf("migrating index schema: %w", err)
	}

	fsmgr := fs.NewOSFilesystemManager()
	hasher := hash.New()
	scanner := blustash.NewScanner(db, fsmgr, hasher, logger,
		blustash.RealClock{}, blustash.UUIDGenerator{}, newConsoleProgress(os.Stderr),
		blustash.ScannerConfig{BatchSize: cfg.Scan.BatchSize, Workers: cfg.Scan.Workers})
	stager := blustash.NewStager(db, logger, blustash.RealClock{})

	return &App{
		cfg:     cfg,
		db:      db,
		fsmgr:   fsmgr,
		scanner: scanner,
		stager:  stager,
		burner:  burner.New(logger, cfg.Burner.Sudo),
		logger:  logger,
		logFile: logFile,
	}, nil
}

// Scan synchronizes the index with the subtree at rawRoot.
// An empty rawRoot falls back to the configured scan root.
func (a *App) Scan(ctx context.Context, rawRoot string) (*blustash.ScanStats, error) {
	if rawRoot == "" {
		rawRoot = a.cfg.Scan.Root
	}
	if rawRoot == "" {
		return nil, fmt.Errorf("no scan root given and none configured")
	}
	root, err := a.fsmgr.Resolve(rawRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving scan root: %w", err)
	}
	return a.scanner.Scan(ctx, root)
}

// Stage generates the mapping manifest for all unsafed files and flags them
// safed. Empty base/output fall back to the configured values.
func (a *App) Stage(base, output string) (*blustash.StageResult, error) {
	if base == "" {
		base = a.cfg.Scan.Root
	}
	if base == "" {
		return nil, fmt.Errorf("no base path given and no scan root configured")
	}
	if output == "" {
		output = a.cfg.Staging.MappingFile
	}
	return a.stager.CreateManifest(blustash.StageParams{
		BasePath:   base,
		OutputFile: output,
		BackupDir:  a.cfg.Staging.BackupDir,
		DataDir:    a.cfg.Staging.DataDir,
	})
}

// Burn hands a manifest to the disc-mastering tool. Empty device/mapping
// fall back to the configured values.
func (a *App) Burn(ctx context.Context, device, mapping string, finalize bool) (*blustash.BurnResult, error) {
	if device == "" {
		device = a.cfg.Burner.Device
	}
	if mapping == "" {
		mapping = a.cfg.Staging.MappingFile
	}
	return a.burner.Burn(ctx, device, mapping, finalize || a.cfg.Burner.Finalize)
}

// Extract restores one disc session into outputDir.
func (a *App) Extract(ctx context.Context, device string, session int, outputDir string) (*blustash.BurnResult, error) {
	if device == "" {
		device = a.cfg.Burner.Device
	}
	return a.burner.Extract(ctx, device, session, outputDir)
}

// Sessions lists the sessions present on the device.
func (a *App) Sessions(ctx context.Context, device string) ([]blustash.DiscSession, error) {
	if device == "" {
		device = a.cfg.Burner.Device
	}
	return a.burner.Sessions(ctx, device)
}

// Verify checks the disc's recorded checksums.
func (a *App) Verify(ctx context.Context, device string) (*blustash.BurnResult, error) {
	if device == "" {
		device = a.cfg.Burner.Device
	}
	return a.burner.Verify(ctx, device)
}

// Info returns the most recent scan session, or nil if none was recorded.
func (a *App) Info() (*model.ScanSession, error) {
	return a.db.LatestScanSession()
}

// Close closes the index and the log file.
func (a *App) Close() error {
	var firstErr error
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing index: %w", err)
	}
	if err := a.logFile.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing log file: %w", err)
	}
	return firstErr
}
