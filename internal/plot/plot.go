// Package plot renders delay distributions by outcome.
package plot

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var ErrNoData = errors.New("nothing to plot")

// Sink receives aligned group labels and values.
type Sink interface {
	Plot(labels []string, values []float64) error
}

// BoxPlotter draws one box per label and saves it to Path. The image
// format follows the file extension (png, svg, pdf, ...).
type BoxPlotter struct {
	Path   string
	Title  string
	YLabel string
	Width  vg.Length
	Height vg.Length
}

// NewBoxPlotter returns a plotter writing to path with default labels and size.
func NewBoxPlotter(path string) *BoxPlotter {
	return &BoxPlotter{
		Path:   path,
		Title:  "Delay to first anticoagulation",
		YLabel: "days from admission",
		Width:  6 * vg.Inch,
		Height: 4 * vg.Inch,
	}
}

// Groups collects values by label with labels sorted.
func Groups(labels []string, values []float64) ([]string, map[string]plotter.Values, error) {
	if len(labels) != len(values) {
		return nil, nil, fmt.Errorf("labels and values differ in length: %d vs %d", len(labels), len(values))
	}
	groups := make(map[string]plotter.Values)
	for i, l := range labels {
		groups[l] = append(groups[l], values[i])
	}
	names := make([]string, 0, len(groups))
	for l := range groups {
		names = append(names, l)
	}
	sort.Strings(names)
	return names, groups, nil
}

func (b *BoxPlotter) Plot(labels []string, values []float64) error {
	names, groups, err := Groups(labels, values)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return ErrNoData
	}

	p := plot.New()
	p.Title.Text = b.Title
	p.Y.Label.Text = b.YLabel

	for i, name := range names {
		box, err := plotter.NewBoxPlot(vg.Points(20), float64(i), groups[name])
		if err != nil {
			return fmt.Errorf("box for %s: %w", name, err)
		}
		p.Add(box)
	}
	p.NominalX(names...)

	if err := p.Save(b.Width, b.Height, b.Path); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}
