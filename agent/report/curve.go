package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/wricardo/mcp-training/montecarlo/agent/trainer"
)

// DefaultWindow is the moving-average width of the smoothed series
const DefaultWindow = 20

// WriteLearningCurve renders an HTML page with steps and return per episode,
// each alongside its moving average over window episodes.
func WriteLearningCurve(w io.Writer, title string, history []trainer.EpisodeSummary, window int) error {
	if len(history) == 0 {
		return fmt.Errorf("no episodes to plot")
	}
	if window <= 0 {
		window = DefaultWindow
	}

	episodes := make([]string, 0, len(history))
	steps := make([]float64, 0, len(history))
	returns := make([]float64, 0, len(history))
	for _, h := range history {
		episodes = append(episodes, fmt.Sprintf("%d", h.Episode))
		steps = append(steps, float64(h.Steps))
		returns = append(returns, h.Return)
	}

	stepsChart := charts.NewLine()
	stepsChart.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "steps per episode"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: "shine"}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
	)
	stepsChart.SetXAxis(episodes).
		AddSeries("steps", lineData(steps)).
		AddSeries(fmt.Sprintf("steps (avg %d)", window), lineData(MovingAverage(steps, window)))

	returnChart := charts.NewLine()
	returnChart.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "return per episode"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: "shine"}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
	)
	returnChart.SetXAxis(episodes).
		AddSeries("return", lineData(returns)).
		AddSeries(fmt.Sprintf("return (avg %d)", window), lineData(MovingAverage(returns, window)))

	page := components.NewPage()
	page.AddCharts(stepsChart, returnChart)
	return page.Render(w)
}

// MovingAverage returns the trailing mean of values over window points; the
// first points average over what is available.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

func lineData(values []float64) []opts.LineData {
	items := make([]opts.LineData, 0, len(values))
	for _, v := range values {
		items = append(items, opts.LineData{Value: v})
	}
	return items
}
