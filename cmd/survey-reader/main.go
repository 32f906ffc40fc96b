// Survey Reader - Utility to display contents of station files
// This program reads a logged station file and shows the stations with the
// ranges derived from their travel times
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"anchor-survey/internal/config"
	"anchor-survey/internal/stationfile"
	"anchor-survey/internal/survey"
	"anchor-survey/internal/version"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	outputFormat string
	dropLat      string
	dropLon      string
	showStats    bool
	showGraph    bool
	graphWidth   int
	graphHeight  int
	showVersion  bool
)

// stationRow is one displayed station
type stationRow struct {
	Index       int                  `json:"index"`
	Station     survey.StationRecord `json:"station"`
	SlantM      float64              `json:"slant_m"`
	HorizontalM float64              `json:"horizontal_m"`
	DropRangeM  float64              `json:"drop_range_m"`
	DropBearing float64              `json:"drop_bearing_deg"`
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "survey-reader [file.dat]",
	Short: "Display contents of survey station files",
	Long: `Survey Reader displays the stations of a survey logger .dat file together
with the slant and horizontal ranges derived from their travel times.
Useful for checking a survey before solving it.

Display modes:
  --stats      Show range and coverage statistics
  --graph      Plot the stations around the drop position in ASCII`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.GetVersionInfo("Survey Reader"))
			return
		}

		if len(args) == 0 {
			fmt.Fprintf(os.Stderr, "Error: filename required\n")
			cmd.Usage()
			os.Exit(1)
		}

		if err := displayFile(args[0]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")
	rootCmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "output format (table, json, csv)")
	rootCmd.Flags().StringVar(&dropLat, "drop-lat", "", "planned drop latitude (e.g., 35.951133 or '35 57.068 N')")
	rootCmd.Flags().StringVar(&dropLon, "drop-lon", "", "planned drop longitude (e.g., -75.130367 or '75 7.822 W')")
	rootCmd.Flags().Float64("transducer-depth", 5.0, "transducer depth (m)")
	rootCmd.Flags().Float64("anchor-depth", 0.0, "water depth at the drop (m), 0 if unknown")
	rootCmd.Flags().Float64("sound-speed", 1500.0, "sound speed (m/s)")
	rootCmd.Flags().Bool("round-trip", true, "station travel times are round trip")
	rootCmd.Flags().BoolVar(&showStats, "stats", false, "show range statistics")
	rootCmd.Flags().BoolVarP(&showGraph, "graph", "g", false, "plot stations around the drop position")
	rootCmd.Flags().IntVar(&graphWidth, "graph-width", 61, "width of the plot in characters")
	rootCmd.Flags().IntVar(&graphHeight, "graph-height", 25, "height of the plot in lines")

	viper.BindPFlag("survey.transducer_depth", rootCmd.Flags().Lookup("transducer-depth"))
	viper.BindPFlag("survey.anchor_depth", rootCmd.Flags().Lookup("anchor-depth"))
	viper.BindPFlag("survey.sound_speed", rootCmd.Flags().Lookup("sound-speed"))
	viper.BindPFlag("survey.round_trip", rootCmd.Flags().Lookup("round-trip"))
}

// loadConfig merges the optional config file, environment and flags
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	for flag, key := range map[string]string{"drop-lat": "survey.drop_latitude", "drop-lon": "survey.drop_longitude"} {
		s, _ := rootCmd.Flags().GetString(flag)
		if s == "" {
			continue
		}
		v, err := stationfile.ParseCoordinate(s)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", flag, err)
		}
		viper.Set(key, v)
	}
	return config.Load(viper.GetViper())
}

// displayFile reads and displays the contents of a station file
func displayFile(filename string) error {
	fileInfo, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	} else if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	stations, err := stationfile.Load(filename, cfg.StationFormat())
	if err != nil {
		return err
	}
	params := cfg.SurveyParams()
	rows, err := buildRows(stations, params)
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "csv":
		return writeCSV(rows)
	case "table":
	default:
		return fmt.Errorf("unsupported format: %s (must be table, json or csv)", outputFormat)
	}

	fmt.Printf("SURVEY STATION FILE READER %s\n\n", version.GetFullVersion())

	fmt.Printf("📁 File Information:\n")
	fmt.Printf("Name: %s\n", filepath.Base(filename))
	fmt.Printf("Size: %d bytes\n", fileInfo.Size())
	fmt.Printf("Modified: %s\n\n", fileInfo.ModTime().Format("2006-01-02 15:04:05"))

	fmt.Printf("⚙️  Survey Parameters:\n")
	fmt.Printf("Drop: %.6f°, %.6f°\n", params.DropLatitude, params.DropLongitude)
	fmt.Printf("Transducer Depth: %.1f m\n", params.TransducerDepthM)
	if params.AnchorDepthM > 0 {
		fmt.Printf("Anchor Depth: %.1f m\n", params.AnchorDepthM)
	}
	fmt.Printf("Sound Speed: %.1f m/s\n", params.SoundSpeedMPS)
	fmt.Printf("Travel Times: %s\n\n", map[bool]string{true: "round trip", false: "one way"}[cfg.Survey.RoundTrip])

	displayStations(rows)

	if showStats {
		displayStatistics(rows)
	}
	if showGraph {
		displayGraph(rows)
	}
	return nil
}

func buildRows(stations []survey.StationRecord, params survey.SurveyConfig) ([]stationRow, error) {
	ranges, err := survey.SlantRanges(stations, params)
	if err != nil {
		return nil, err
	}
	rows := make([]stationRow, len(ranges))
	for i, r := range ranges {
		rows[i] = stationRow{
			Index:       i + 1,
			Station:     r.Station,
			SlantM:      r.SlantM,
			HorizontalM: r.HorizontalM,
			DropRangeM:  survey.Distance(params.DropLatitude, params.DropLongitude, r.Station.Latitude, r.Station.Longitude),
			DropBearing: survey.Bearing(params.DropLatitude, params.DropLongitude, r.Station.Latitude, r.Station.Longitude),
		}
	}
	return rows, nil
}

func displayStations(rows []stationRow) {
	fmt.Printf("📡 Stations (%d):\n", len(rows))
	fmt.Printf("┌─────┬──────────────┬──────────────┬──────────┬──────────┬──────────┬──────────────────┐\n")
	fmt.Printf("│  #  │ Latitude     │ Longitude    │ Time (s) │ Slant(m) │ Horiz(m) │ From drop        │\n")
	fmt.Printf("├─────┼──────────────┼──────────────┼──────────┼──────────┼──────────┼──────────────────┤\n")
	for _, r := range rows {
		fmt.Printf("│ %3d │ %12.6f │ %12.6f │ %8.4f │ %8.1f │ %8.1f │ %7.1f m @ %3.0f° │\n",
			r.Index, r.Station.Latitude, r.Station.Longitude, r.Station.TravelTime,
			r.SlantM, r.HorizontalM, r.DropRangeM, r.DropBearing)
	}
	fmt.Printf("└─────┴──────────────┴──────────────┴──────────┴──────────┴──────────┴──────────────────┘\n\n")
}

// displayStatistics shows the spread of the ranges and the angular
// coverage of the stations around the drop
func displayStatistics(rows []stationRow) {
	if len(rows) == 0 {
		return
	}
	minH, maxH, sumH := math.Inf(1), math.Inf(-1), 0.0
	bearings := make([]float64, len(rows))
	for i, r := range rows {
		minH = math.Min(minH, r.HorizontalM)
		maxH = math.Max(maxH, r.HorizontalM)
		sumH += r.HorizontalM
		bearings[i] = r.DropBearing
	}

	fmt.Printf("📊 Statistics:\n")
	fmt.Printf("   Horizontal Range: %.1f to %.1f m (mean %.1f m)\n", minH, maxH, sumH/float64(len(rows)))
	fmt.Printf("   Largest Coverage Gap: %.0f°\n", largestGap(bearings))
	if len(rows) < survey.MinStations {
		fmt.Printf("   ⚠️  At least %d stations are needed to solve\n", survey.MinStations)
	}
	fmt.Println()
}

// largestGap returns the widest bearing sector with no station in it
func largestGap(bearings []float64) float64 {
	if len(bearings) < 2 {
		return 360
	}
	var seen [360]bool
	for _, b := range bearings {
		seen[int(math.Mod(b, 360))] = true
	}
	prev, best := -1, 0
	for i := 0; i < 720; i++ {
		if !seen[i%360] {
			continue
		}
		if prev >= 0 {
			best = max(best, i-prev)
		}
		prev = i
	}
	return float64(best)
}

// displayGraph plots the stations on the local plane around the drop,
// north up
func displayGraph(rows []stationRow) {
	if len(rows) == 0 || graphWidth < 3 || graphHeight < 3 {
		return
	}
	extent := 1.0
	for _, r := range rows {
		extent = math.Max(extent, r.DropRangeM)
	}

	graph := make([][]rune, graphHeight)
	for i := range graph {
		graph[i] = []rune(strings.Repeat(" ", graphWidth))
	}
	cx, cy := graphWidth/2, graphHeight/2
	graph[cy][cx] = '+'

	for _, r := range rows {
		theta := r.DropBearing * math.Pi / 180
		x := cx + int(math.Round(math.Sin(theta)*r.DropRangeM/extent*float64(cx)))
		y := cy - int(math.Round(math.Cos(theta)*r.DropRangeM/extent*float64(cy)))
		x = min(max(x, 0), graphWidth-1)
		y = min(max(y, 0), graphHeight-1)
		if graph[y][x] == ' ' || graph[y][x] == '+' {
			graph[y][x] = '*'
		} else {
			graph[y][x] = '#'
		}
	}

	fmt.Printf("🗺️  Station Plot (north up, %.0f m to edge):\n", extent)
	fmt.Printf("+%s+\n", strings.Repeat("-", graphWidth))
	for _, row := range graph {
		fmt.Printf("|%s|\n", string(row))
	}
	fmt.Printf("+%s+\n", strings.Repeat("-", graphWidth))
	fmt.Printf("Legend: + = drop, * = station, # = multiple stations\n\n")
}

func writeCSV(rows []stationRow) error {
	w := csv.NewWriter(os.Stdout)
	w.Write([]string{"index", "latitude", "longitude", "travel_time_s", "time", "slant_m", "horizontal_m", "drop_range_m", "drop_bearing_deg"})
	for _, r := range rows {
		ts := ""
		if !r.Station.Time.IsZero() {
			ts = r.Station.Time.Format("2006-01-02T15:04:05Z07:00")
		}
		w.Write([]string{
			strconv.Itoa(r.Index),
			strconv.FormatFloat(r.Station.Latitude, 'f', 8, 64),
			strconv.FormatFloat(r.Station.Longitude, 'f', 8, 64),
			strconv.FormatFloat(r.Station.TravelTime, 'f', 6, 64),
			ts,
			strconv.FormatFloat(r.SlantM, 'f', 2, 64),
			strconv.FormatFloat(r.HorizontalM, 'f', 2, 64),
			strconv.FormatFloat(r.DropRangeM, 'f', 2, 64),
			strconv.FormatFloat(r.DropBearing, 'f', 1, 64),
		})
	}
	w.Flush()
	return w.Error()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
