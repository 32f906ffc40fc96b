// Survey Processor - solves acoustic anchor surveys
// This program reads logged station files, fits the anchor position of each
// survey by Gauss-Newton least squares and exports the results for mapping.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"anchor-survey/internal/archive"
	"anchor-survey/internal/config"
	"anchor-survey/internal/logging"
	"anchor-survey/internal/processor"
	"anchor-survey/internal/stationfile"
	"anchor-survey/internal/version"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile       string   // Configuration file path
	inputPatterns []string // Station file patterns (e.g., "data/*.dat")
	dropLat       string   // Drop latitude, decimal or DMS
	dropLon       string   // Drop longitude, decimal or DMS
	verbose       bool     // Enable verbose output
	showVersion   bool     // Show version information
	dryRun        bool     // Show what would be processed without doing it
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "survey-processor",
	Short: "Anchor position solver for acoustic surveys",
	Long: `Survey Processor fits the resting position of an anchor from the acoustic
travel times logged by the survey logger, and reports the fallback: how far
and in which direction the anchor landed from its planned drop position.

Each input station file is solved as its own survey. Several surveys are
solved concurrently.

Supported output formats:
  - GeoJSON: For web mapping applications
  - KML: For Google Earth visualization
  - CSV: For spreadsheet analysis
  - JSON: The complete result, including the iteration trace

Example usage:
  survey-processor --input "data/*.dat" --drop-lat "35 57.068 N" --drop-lon "75 7.822 W"
  survey-processor --input drop-07.dat --transducer-depth 5 --anchor-depth 36 --output-format kml
  survey-processor --input "*.dat" --archive-dsn postgres://survey@localhost/moorings`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Println(version.GetVersionInfo("Survey Processor"))
			os.Exit(0)
		}
		if len(inputPatterns) == 0 {
			return fmt.Errorf(`required flag(s) "input" not set`)
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := runProcessor(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")

	// Input/Output flags
	rootCmd.Flags().StringSliceVarP(&inputPatterns, "input", "i", nil, "station file pattern(s) (e.g., 'data/*.dat')")
	rootCmd.Flags().StringP("output-format", "f", "geojson", "output format (geojson, kml, csv, json)")
	rootCmd.Flags().StringP("output", "o", "./survey-results", "output directory")

	// Survey flags
	rootCmd.Flags().StringVar(&dropLat, "drop-lat", "", "planned drop latitude (e.g., 35.951133 or '35 57.068 N')")
	rootCmd.Flags().StringVar(&dropLon, "drop-lon", "", "planned drop longitude (e.g., -75.130367 or '75 7.822 W')")
	rootCmd.Flags().Float64("transducer-depth", 5.0, "transducer depth (m)")
	rootCmd.Flags().Float64("anchor-depth", 0.0, "water depth at the drop (m), 0 if unknown")
	rootCmd.Flags().Float64("sound-speed", 1500.0, "sound speed (m/s)")
	rootCmd.Flags().Bool("round-trip", true, "station travel times are round trip")

	// Solver flags
	rootCmd.Flags().String("jacobian", "analytic", "Jacobian (analytic, numeric)")
	rootCmd.Flags().Int("max-iterations", 50, "Gauss-Newton iteration limit")
	rootCmd.Flags().Int("workers", 4, "surveys solved concurrently")

	// Archive and logging
	rootCmd.Flags().String("archive-dsn", "", "PostgreSQL DSN to archive results (optional)")
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().String("log-file", "", "JSON log file (default stderr)")

	// Control flags
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be processed without doing it")

	viper.BindPFlag("processing.output_format", rootCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("processing.output_dir", rootCmd.Flags().Lookup("output"))
	viper.BindPFlag("processing.workers", rootCmd.Flags().Lookup("workers"))
	viper.BindPFlag("survey.transducer_depth", rootCmd.Flags().Lookup("transducer-depth"))
	viper.BindPFlag("survey.anchor_depth", rootCmd.Flags().Lookup("anchor-depth"))
	viper.BindPFlag("survey.sound_speed", rootCmd.Flags().Lookup("sound-speed"))
	viper.BindPFlag("survey.round_trip", rootCmd.Flags().Lookup("round-trip"))
	viper.BindPFlag("solver.jacobian", rootCmd.Flags().Lookup("jacobian"))
	viper.BindPFlag("solver.max_iterations", rootCmd.Flags().Lookup("max-iterations"))
	viper.BindPFlag("archive.dsn", rootCmd.Flags().Lookup("archive-dsn"))
	viper.BindPFlag("logging.level", rootCmd.Flags().Lookup("log-level"))
	viper.BindPFlag("logging.file", rootCmd.Flags().Lookup("log-file"))
}

// initConfig reads in .env, the config file and ENV variables if set
func initConfig() {
	if err := godotenv.Load(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Loaded environment from .env\n")
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// applyDropFlags parses the drop position flags, which accept DMS as well
// as decimal degrees
func applyDropFlags() error {
	if dropLat != "" {
		v, err := stationfile.ParseCoordinate(dropLat)
		if err != nil {
			return fmt.Errorf("--drop-lat: %w", err)
		}
		viper.Set("survey.drop_latitude", v)
	}
	if dropLon != "" {
		v, err := stationfile.ParseCoordinate(dropLon)
		if err != nil {
			return fmt.Errorf("--drop-lon: %w", err)
		}
		viper.Set("survey.drop_longitude", v)
	}
	return nil
}

// runProcessor is the main application logic
func runProcessor() error {
	if err := applyDropFlags(); err != nil {
		return err
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.Logging, "survey-processor")
	if err != nil {
		return err
	}
	defer closer.Close()

	fmt.Printf("╔══════════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║             ANCHOR SURVEY PROCESSOR %s                 ║\n", fmt.Sprintf("%-8s", version.GetFullVersion()))
	fmt.Printf("╚══════════════════════════════════════════════════════════════╝\n\n")

	if verbose {
		fmt.Printf("🔧 Configuration:\n")
		fmt.Printf("   Input Patterns: %s\n", strings.Join(inputPatterns, ", "))
		fmt.Printf("   Drop Position: %.6f°, %.6f°\n", cfg.Survey.DropLatitude, cfg.Survey.DropLongitude)
		fmt.Printf("   Transducer Depth: %.1f m\n", cfg.Survey.TransducerDepth)
		if cfg.Survey.AnchorDepth > 0 {
			fmt.Printf("   Anchor Depth: %.1f m\n", cfg.Survey.AnchorDepth)
		}
		fmt.Printf("   Sound Speed: %.1f m/s\n", cfg.Survey.SoundSpeed)
		fmt.Printf("   Jacobian: %s\n", cfg.Solver.Jacobian)
		fmt.Printf("   Output: %s → %s\n", cfg.Processing.OutputFormat, cfg.Processing.OutputDir)
		fmt.Printf("   Dry Run: %t\n\n", dryRun)
	}
	if cfg.DropUnset() {
		fmt.Printf("⚠️  Drop position is 0°, 0°. Set --drop-lat/--drop-lon or survey.drop_latitude/drop_longitude\n\n")
	}

	files, err := findMatchingFiles(inputPatterns)
	if err != nil {
		return fmt.Errorf("failed to find input files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found matching %s. Make sure:\n  - Pattern includes correct path (e.g., 'data/*.dat')\n  - Files exist and have .dat extension\n  - Pattern is quoted to prevent shell expansion", strings.Join(inputPatterns, ", "))
	}

	fmt.Printf("📁 Found %d station file(s):\n", len(files))
	for i, file := range files {
		fmt.Printf("   %d. %s\n", i+1, filepath.Base(file))
	}
	fmt.Println()

	if dryRun {
		fmt.Printf("🔍 DRY RUN: Would solve %d survey(s) with the %s Jacobian\n", len(files), cfg.Solver.Jacobian)
		fmt.Printf("📤 Would generate output in %s format to: %s\n", cfg.Processing.OutputFormat, cfg.Processing.OutputDir)
		return nil
	}

	opts, err := cfg.SolverOptions(logger)
	if err != nil {
		return err
	}
	proc, err := processor.NewProcessor(&processor.Config{
		Survey:  cfg.SurveyParams(),
		Format:  cfg.StationFormat(),
		Options: opts,
		Workers: cfg.Processing.Workers,
		Verbose: verbose,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize processor: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, err := proc.ProcessFiles(ctx, files)
	if err != nil {
		return fmt.Errorf("survey processing failed: %w", err)
	}

	if err := os.MkdirAll(cfg.Processing.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var outputs []string
	for _, r := range results {
		outputFile := generateOutputFilename(r, cfg.Processing.OutputFormat, cfg.Processing.OutputDir)
		fmt.Printf("📤 Exporting %s to %s...\n", r.SurveyID, outputFile)
		if err := r.Export(outputFile, cfg.Processing.OutputFormat); err != nil {
			return fmt.Errorf("failed to export results: %w", err)
		}
		outputs = append(outputs, outputFile)
	}

	if cfg.Archive.DSN != "" {
		if err := archiveResults(ctx, cfg, results, logger); err != nil {
			return err
		}
	}

	displaySummary(results, outputs)
	return nil
}

// archiveResults upserts the solved surveys into PostgreSQL
func archiveResults(ctx context.Context, cfg *config.Config, results []*processor.Result, logger *slog.Logger) error {
	fmt.Printf("🗄️  Archiving %d survey(s)...\n", len(results))
	store, err := archive.Open(ctx, cfg.Archive.DSN, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := store.SaveAll(ctx, results); err != nil {
		return err
	}
	logger.Info("surveys archived", "count", len(results))
	return nil
}

// findMatchingFiles expands each pattern, keeping .dat files once each
func findMatchingFiles(patterns []string) ([]string, error) {
	seen := map[string]bool{}
	var datFiles []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			if !strings.HasSuffix(strings.ToLower(match), ".dat") || seen[match] {
				continue
			}
			seen[match] = true
			datFiles = append(datFiles, match)
		}
	}
	sort.Strings(datFiles)
	return datFiles, nil
}

// generateOutputFilename creates an output filename for one survey
func generateOutputFilename(result *processor.Result, format, outputDir string) string {
	// Format: anchor_<survey>_YYYYMMDD_HHMMSS.geojson
	timestamp := result.ProcessingTime.Format("20060102_150405")
	filename := fmt.Sprintf("anchor_%s_%s%s", result.SurveyID, timestamp, processor.Extension(format))
	return filepath.Join(outputDir, filename)
}

// displaySummary shows a summary table of the solved surveys
func displaySummary(results []*processor.Result, outputs []string) {
	fmt.Printf("\n✅ Survey Processing Complete!\n\n")

	fmt.Printf("📊 Results Summary:\n")
	fmt.Printf("┌──────────────────────┬──────────────────────────┬──────────┬────────────┬───────────┐\n")
	fmt.Printf("│ Survey               │ Anchor Position          │ RMS (m)  │ Fallback   │ Status    │\n")
	fmt.Printf("├──────────────────────┼──────────────────────────┼──────────┼────────────┼───────────┤\n")
	for _, r := range results {
		status := "converged"
		if !r.Converged {
			status = "max iter"
		}
		fmt.Printf("│ %-20.20s │ %11.6f°,%11.6f° │ %8.2f │ %6.1f m    │ %-9s │\n",
			r.SurveyID, r.Anchor.Latitude, r.Anchor.Longitude, r.RMSErrorM, r.Fallback.DistanceM, status)
	}
	fmt.Printf("└──────────────────────┴──────────────────────────┴──────────┴────────────┴───────────┘\n\n")

	fmt.Printf("📁 Output Files:\n")
	for _, o := range outputs {
		fmt.Printf("   %s\n", o)
	}
	fmt.Printf("🗺️  Open the output files in mapping software to review the anchor,\n")
	fmt.Printf("   station range circles and fallback line.\n\n")
}

// main is the entry point of the application
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
