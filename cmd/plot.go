package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

var (
	plotIn   string   // JSONL record file to read
	plotOut  string   // output PNG path
	plotKeys []string // record keys to plot
)

// plotCmd renders record-file series as a line chart, one line per key.
var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Plot record-file telemetry series against iteration index",
	RunE: func(cmd *cobra.Command, args []string) error {
		series, err := loadSeries(plotIn, plotKeys)
		if err != nil {
			return err
		}

		p := plot.New()
		p.Title.Text = plotIn
		p.X.Label.Text = "Iteration"
		p.Y.Label.Text = "Value"
		for i, key := range plotKeys {
			values := series[key]
			if len(values) == 0 {
				return fmt.Errorf("key %q: no numeric values in %s", key, plotIn)
			}
			points := make(plotter.XYs, len(values))
			for j, v := range values {
				points[j] = plotter.XY{X: float64(j), Y: v}
			}
			line, err := plotter.NewLine(points)
			if err != nil {
				return err
			}
			line.Color = plotutil.Color(i)
			p.Add(line)
			p.Legend.Add(key, line)
		}
		return p.Save(8*vg.Inch, 6*vg.Inch, plotOut)
	},
}

func init() {
	plotCmd.Flags().StringVar(&plotIn, "in", "records.jsonl", "JSONL record file")
	plotCmd.Flags().StringVar(&plotOut, "out", "records.png", "output PNG path")
	plotCmd.Flags().StringSliceVar(&plotKeys, "key", []string{"reward"}, "record keys to plot (repeatable)")
	rootCmd.AddCommand(plotCmd)
}

// loadSeries extracts numeric per-iteration series for the given keys from a
// JSONL record file. Records missing a key just skip that sample.
func loadSeries(path string, keys []string) (map[string][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	series := make(map[string][]float64, len(keys))
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec := make(map[string]any)
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		for _, key := range keys {
			if v, ok := rec[key].(float64); ok {
				series[key] = append(series[key], v)
			}
		}
	}
	return series, scanner.Err()
}
