package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"muenzbox/internal/config"
	"muenzbox/internal/database"
	"muenzbox/internal/logging"
	"muenzbox/internal/service"
)

func main() {
	// Define subcommands
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)

	exportOutput := exportCmd.String("output", "", "Output file path, .gz compresses (default: muenzbox_backup_YYYYMMDD_HHMMSS.json)")

	importInput := importCmd.String("input", "", "Input file path, .gz is decompressed (required)")
	importWipe := importCmd.Bool("wipe", false, "Delete existing data before import (WARNING: destructive)")
	importYes := importCmd.Bool("yes", false, "Skip the confirmation prompt for -wipe")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Pretty)
	ctx := context.Background()

	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	// Run migrations to ensure schema is up to date
	if err := db.RunMigrations(ctx, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	backupService := service.NewBackupService(db, logger)

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		err = handleExport(ctx, backupService, *exportOutput, logger)

	case "import":
		importCmd.Parse(os.Args[2:])
		if *importInput == "" {
			fmt.Println("Error: -input flag is required")
			importCmd.PrintDefaults()
			os.Exit(1)
		}
		if *importWipe && !*importYes && !confirm("WARNING: This will delete all existing data. Type 'yes' to confirm: ") {
			logger.Info().Msg("import cancelled")
			return
		}
		err = handleImport(ctx, backupService, *importInput, *importWipe, logger)

	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Fatal().Err(err).Str("command", os.Args[1]).Msg("backup command failed")
	}
}

func handleExport(ctx context.Context, backupService *service.BackupService, outputPath string, logger zerolog.Logger) error {
	if outputPath == "" {
		outputPath = fmt.Sprintf("muenzbox_backup_%s.json", time.Now().Format("20060102_150405"))
	}

	dir := filepath.Dir(outputPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if isGzip(outputPath) {
		gz = gzip.NewWriter(f)
		w = gz
	}

	backup, err := backupService.Export(ctx, w)
	if err != nil {
		return err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to finish compressed backup: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to write backup file: %w", err)
	}

	event := logger.Info().Str("path", outputPath).
		Int("children", len(backup.Children)).
		Int("sessions", len(backup.Sessions))
	if info, err := f.Stat(); err == nil {
		event = event.Int64("bytes", info.Size())
	}
	event.Msg("export complete")
	return nil
}

func handleImport(ctx context.Context, backupService *service.BackupService, inputPath string, wipe bool, logger zerolog.Logger) error {
	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if isGzip(inputPath) {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to read compressed backup: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	logger.Info().Str("path", inputPath).Bool("wipe", wipe).Msg("importing backup")
	backup, err := backupService.Import(ctx, r, wipe)
	if err != nil {
		return err
	}

	logger.Info().
		Time("exported_at", backup.ExportedAt).
		Int("children", len(backup.Children)).
		Int("devices", len(backup.Devices)).
		Int("sessions", len(backup.Sessions)).
		Msg("import complete")
	return nil
}

func isGzip(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".gz")
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.TrimSpace(answer) == "yes"
}

func printUsage() {
	fmt.Println("Münzbox Database Backup Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  backup export [options]    Export database to a JSON file")
	fmt.Println("  backup import [options]    Import database from a JSON file")
	fmt.Println()
	fmt.Println("Export Options:")
	fmt.Println("  -output <file>    Output file path, a .gz suffix compresses (default: muenzbox_backup_YYYYMMDD_HHMMSS.json)")
	fmt.Println()
	fmt.Println("Import Options:")
	fmt.Println("  -input <file>     Input file path (required)")
	fmt.Println("  -wipe             Delete existing data before import (WARNING: destructive)")
	fmt.Println("  -yes              Do not ask for confirmation")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  backup export -output /backups/muenzbox.json.gz")
	fmt.Println("  backup import -input /backups/muenzbox.json.gz -wipe")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DATABASE_TYPE    Database type: sqlite, postgres, or mysql (default: sqlite)")
	fmt.Println("  DB_PATH          SQLite database path")
	fmt.Println("  DATABASE_URL     PostgreSQL or MySQL connection URL")
}
