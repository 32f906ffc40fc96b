// Survey Logger - acoustic ranging station logger for anchor surveys
// This program records one station per acoustic ping: the boat's GPS
// position and the travel time read from the deck unit.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"anchor-survey/internal/collector"
	"anchor-survey/internal/config"
	"anchor-survey/internal/logging"
	"anchor-survey/internal/stationfile"
	"anchor-survey/internal/survey"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Command line flag variables
var (
	cfgFile string // Configuration file path
	dropLat string // Planned drop latitude, decimal or DMS
	dropLon string // Planned drop longitude, decimal or DMS
	verbose bool   // Enable verbose logging
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "survey-logger",
	Short: "Acoustic ranging station logger for anchor surveys",
	Long: `Survey Logger records acoustic ranging stations around a dropped anchor.
For every ping, enter the travel time shown by the deck unit; the current
GPS position is stamped onto it and the station is appended to the survey's
station file. Once three stations are logged, a provisional anchor position
is shown after each new one.

Readings are read from standard input, one per line:
  <travel_time>                 position taken from GPS
  <lat> <lon> <travel_time>     position entered by hand`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runLogger(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// init initializes the CLI flags and configuration
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Survey options
	rootCmd.Flags().StringVar(&dropLat, "drop-lat", "", "planned drop latitude (e.g., 35.951133 or '35 57.068 N')")
	rootCmd.Flags().StringVar(&dropLon, "drop-lon", "", "planned drop longitude (e.g., -75.130367 or '75 7.822 W')")
	rootCmd.Flags().Float64("transducer-depth", 5.0, "transducer depth (m)")
	rootCmd.Flags().Float64("anchor-depth", 0.0, "water depth at the drop (m), 0 if unknown")
	rootCmd.Flags().Float64("sound-speed", 1500.0, "sound speed (m/s)")
	rootCmd.Flags().Bool("round-trip", true, "entered travel times are round trip")
	rootCmd.Flags().StringP("output", "o", "./data", "output directory")
	rootCmd.Flags().String("survey-id", "", "survey identifier (default <prefix>_<unix time>)")

	// GPS configuration options
	rootCmd.Flags().String("gps-mode", "nmea", "GPS mode: nmea, gpsd, or manual")
	rootCmd.Flags().StringP("gps-port", "p", "/dev/ttyUSB0", "GPS serial port (for NMEA mode)")
	rootCmd.Flags().Int("baud-rate", 4800, "GPS serial baud rate (for NMEA mode)")
	rootCmd.Flags().String("gpsd-host", "localhost", "GPSD host address (for gpsd mode)")
	rootCmd.Flags().String("gpsd-port", "2947", "GPSD port (for gpsd mode)")
	rootCmd.Flags().Float64("latitude", 0.0, "manual latitude in decimal degrees (for manual mode)")
	rootCmd.Flags().Float64("longitude", 0.0, "manual longitude in decimal degrees (for manual mode)")

	// Logging
	rootCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.Flags().String("log-file", "", "JSON log file (default stderr)")

	// Bind command line flags to viper configuration keys
	viper.BindPFlag("survey.transducer_depth", rootCmd.Flags().Lookup("transducer-depth"))
	viper.BindPFlag("survey.anchor_depth", rootCmd.Flags().Lookup("anchor-depth"))
	viper.BindPFlag("survey.sound_speed", rootCmd.Flags().Lookup("sound-speed"))
	viper.BindPFlag("survey.round_trip", rootCmd.Flags().Lookup("round-trip"))
	viper.BindPFlag("collection.output_dir", rootCmd.Flags().Lookup("output"))
	viper.BindPFlag("collection.survey_id", rootCmd.Flags().Lookup("survey-id"))
	viper.BindPFlag("gps.mode", rootCmd.Flags().Lookup("gps-mode"))
	viper.BindPFlag("gps.port", rootCmd.Flags().Lookup("gps-port"))
	viper.BindPFlag("gps.baud_rate", rootCmd.Flags().Lookup("baud-rate"))
	viper.BindPFlag("gps.gpsd_host", rootCmd.Flags().Lookup("gpsd-host"))
	viper.BindPFlag("gps.gpsd_port", rootCmd.Flags().Lookup("gpsd-port"))
	viper.BindPFlag("gps.manual_latitude", rootCmd.Flags().Lookup("latitude"))
	viper.BindPFlag("gps.manual_longitude", rootCmd.Flags().Lookup("longitude"))
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

// runLogger is the main application logic
func runLogger() error {
	for flag, key := range map[string]string{"drop-lat": "survey.drop_latitude", "drop-lon": "survey.drop_longitude"} {
		s, _ := rootCmd.Flags().GetString(flag)
		if s == "" {
			continue
		}
		v, err := stationfile.ParseCoordinate(s)
		if err != nil {
			return fmt.Errorf("--%s: %w", flag, err)
		}
		viper.Set(key, v)
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if err := cfg.ValidateGPS(); err != nil {
		return err
	}

	logger, closer, err := logging.New(cfg.Logging, "survey-logger")
	if err != nil {
		return err
	}
	defer closer.Close()

	// Display startup information
	fmt.Printf("Survey Logger starting...\n")
	fmt.Printf("Drop: %.6f°, %.6f°\n", cfg.Survey.DropLatitude, cfg.Survey.DropLongitude)
	fmt.Printf("Transducer depth: %.1f m, sound speed: %.1f m/s\n", cfg.Survey.TransducerDepth, cfg.Survey.SoundSpeed)
	fmt.Printf("Output: %s\n", cfg.Collection.OutputDir)
	if cfg.DropUnset() {
		fmt.Printf("⚠️  Drop position is 0°, 0°. Set --drop-lat/--drop-lon or survey.drop_latitude/drop_longitude\n")
	}

	switch cfg.GPS.Mode {
	case "manual":
		fmt.Printf("GPS: MANUAL MODE (using fixed coordinates)\n")
		fmt.Printf("Location: %.8f°, %.8f°\n", cfg.GPS.ManualLatitude, cfg.GPS.ManualLongitude)
	case "nmea":
		fmt.Printf("GPS: NMEA MODE (serial port %s)\n", cfg.GPS.Port)
	case "gpsd":
		fmt.Printf("GPS: GPSD MODE (%s:%s)\n", cfg.GPS.GPSDHost, cfg.GPS.GPSDPort)
	}

	c := collector.NewCollector(cfg, logger)
	if err := c.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize collector: %w", err)
	}
	defer c.Close()

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.WaitForGPSFix(ctx); err != nil {
		return fmt.Errorf("GPS initialization failed: %w", err)
	}

	n, err := c.Run(ctx, os.Stdin)
	if errors.Is(err, context.Canceled) {
		fmt.Printf("\nReceived interrupt signal, shutting down...\n")
	} else if err != nil {
		return fmt.Errorf("survey logging failed: %w", err)
	}

	fmt.Printf("Logged %d station(s) to %s\n", n, c.Filename())
	if n >= survey.MinStations {
		est, fb, err := c.Provisional()
		if err != nil {
			fmt.Printf("Anchor: unavailable (%v)\n", err)
			return nil
		}
		fmt.Printf("Anchor: %.6f°, %.6f° (RMS %.2f m, %d iterations)\n",
			est.Latitude, est.Longitude, est.RMSErrorM, est.Iterations)
		fmt.Printf("Fallback: %.1f m @ %.0f°\n", fb.DistanceM, fb.BearingDeg)
	}
	return nil
}

// main is the entry point of the application
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
