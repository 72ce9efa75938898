package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"cloudpulse/internal/storage"
)

// Export renders a project's daily spend history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	to := time.Now().UTC().AddDate(0, 0, 1)
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.AddDate(0, 0, -90)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	days, err := store.DailyProjectSpend(ctx, opts.ProjectID, from, to)
	if err != nil {
		return err
	}
	if len(days) == 0 {
		a.Logger.Info().Msg("no cost records found for export window")
		return nil
	}

	downsampled := downsampleDays(days, opts.MaxPoints)
	a.Logger.Info().Int("total", len(days)).Int("exported", len(downsampled)).Msg("exporting daily spend")

	if opts.CSVPath != "" {
		if err := writeSpendCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSpendPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleDays(days []storage.DailySpend, max int) []storage.DailySpend {
	if max <= 0 || len(days) <= max {
		return days
	}

	result := make([]storage.DailySpend, 0, max)
	step := float64(len(days)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(days) {
			idx = len(days) - 1
		}
		result = append(result, days[idx])
	}
	return result
}

func writeSpendCSV(path string, days []storage.DailySpend) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"day", "spend"}); err != nil {
		return err
	}

	for _, day := range days {
		record := []string{
			day.Day.Format("2006-01-02"),
			day.Amount.StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSpendPNG(path string, days []storage.DailySpend) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(days))
	spend := make([]float64, len(days))
	for i, day := range days {
		x[i] = day.Day
		spend[i] = day.Amount.InexactFloat64()
	}

	spendFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Spend (USD)",
			ValueFormatter: spendFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Daily spend",
				XValues: x,
				YValues: spend,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
