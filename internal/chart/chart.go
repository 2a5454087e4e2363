// Package chart renders item-weight bar charts as PNG.
package chart

import (
	"bytes"
	"fmt"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/mind-engage/mindengage-testbot/internal/grading"
)

const (
	minWidth  = 480
	barPixels = 50
	height    = 400
)

// Renderer implements grading.ChartRenderer with go-chart.
type Renderer struct {
	Title string
}

var _ grading.ChartRenderer = Renderer{}

func (r Renderer) RenderDifficultyChart(items []grading.ItemStat) ([]byte, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("chart: no items")
	}
	bars := make([]chart.Value, 0, len(items))
	for _, it := range items {
		bars = append(bars, chart.Value{
			Value: it.Weight,
			Label: fmt.Sprintf("Q%d", it.Question),
		})
	}
	title := r.Title
	if title == "" {
		title = "Question weights"
	}
	bc := chart.BarChart{
		Title:      title,
		Height:     height,
		Width:      max(minWidth, 160+len(items)*barPixels),
		BarWidth:   30,
		BarSpacing: 20,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: 4.5},
		},
		Bars: bars,
	}
	var buf bytes.Buffer
	if err := bc.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart: render: %w", err)
	}
	return buf.Bytes(), nil
}
