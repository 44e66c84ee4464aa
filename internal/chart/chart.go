// Package chart draws assembled series as line charts with a log-scaled price axis.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/timmy/predictboard/internal/domain"
)

// ErrNothingToDraw is returned when no point with a positive price falls in the window.
var ErrNothingToDraw = errors.New("no drawable points in series")

const (
	FormatPNG = "png"
	FormatSVG = "svg"
)

// Options controls image size, visible date window and output format.
type Options struct {
	Width  int
	Height int
	// From and To bound the visible dates; a zero value leaves that side open.
	From   time.Time
	To     time.Time
	Format string
}

// Line is the drawable part of one provenance tag.
type Line struct {
	Tag    domain.Tag
	Dates  []time.Time
	Prices []float64
}

// Lines groups points by tag, one line per distinct tag in first-seen order.
// Non-positive prices are dropped because they have no log value.
func Lines(s *domain.Series) []Line {
	index := make(map[domain.Tag]int)
	var lines []Line
	for _, p := range s.Points {
		price := p.Price.InexactFloat64()
		if price <= 0 {
			continue
		}
		i, ok := index[p.Tag]
		if !ok {
			i = len(lines)
			index[p.Tag] = i
			lines = append(lines, Line{Tag: p.Tag})
		}
		lines[i].Dates = append(lines[i].Dates, p.Date)
		lines[i].Prices = append(lines[i].Prices, price)
	}
	return lines
}

// ContentType returns the MIME type for a format.
func ContentType(format string) string {
	if format == FormatSVG {
		return "image/svg+xml"
	}
	return "image/png"
}

var tagStyles = map[domain.Tag]chart.Style{
	domain.TagReal: {
		StrokeColor: chart.ColorBlue,
		StrokeWidth: 2,
	},
	domain.TagPredicted: {
		StrokeColor:     chart.ColorOrange,
		StrokeWidth:     2,
		StrokeDashArray: []float64{6, 4},
	},
}

func styleFor(tag domain.Tag) chart.Style {
	if st, ok := tagStyles[tag]; ok {
		return st
	}
	return chart.Style{StrokeColor: drawing.ColorBlack, StrokeWidth: 1}
}

// Render draws the series restricted to the options' window.
// Parameters:
//   - s: assembled series; points need not be windowed.
//   - title: chart title, usually the ticker.
//   - opts: size, window and format.
// Returns:
//   - []byte: encoded PNG or SVG.
//   - error: ErrNothingToDraw, or a rendering error.
func Render(s *domain.Series, title string, opts Options) ([]byte, error) {
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.Height <= 0 {
		opts.Height = 480
	}

	lines := Lines(s.Window(opts.From, opts.To))
	if len(lines) == 0 {
		return nil, ErrNothingToDraw
	}

	var series []chart.Series
	var minT, maxT time.Time
	minLog, maxLog := math.Inf(1), math.Inf(-1)
	for _, l := range lines {
		ys := make([]float64, len(l.Prices))
		for i, p := range l.Prices {
			ys[i] = math.Log10(p)
			minLog = math.Min(minLog, ys[i])
			maxLog = math.Max(maxLog, ys[i])
		}
		for _, d := range l.Dates {
			if minT.IsZero() || d.Before(minT) {
				minT = d
			}
			if d.After(maxT) {
				maxT = d
			}
		}
		series = append(series, chart.TimeSeries{
			Name:    string(l.Tag),
			XValues: l.Dates,
			YValues: ys,
			Style:   styleFor(l.Tag),
		})
	}

	// A single date or a flat price still needs a non-zero axis span.
	if !maxT.After(minT) {
		minT = minT.AddDate(0, 0, -1)
		maxT = maxT.AddDate(0, 0, 1)
	}
	if maxLog-minLog < 0.01 {
		minLog -= 0.05
		maxLog += 0.05
	}

	ch := chart.Chart{
		Title:      title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		XAxis: chart.XAxis{
			Name:           "date",
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02"),
			Range: &chart.ContinuousRange{
				Min: chart.TimeToFloat64(minT),
				Max: chart.TimeToFloat64(maxT),
			},
		},
		YAxis: chart.YAxis{
			Name:  "price (log)",
			Range: &chart.ContinuousRange{Min: minLog, Max: maxLog},
			Ticks: LogTicks(minLog, maxLog),
		},
		Series: series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	provider := chart.PNG
	if opts.Format == FormatSVG {
		provider = chart.SVG
	}

	var buf bytes.Buffer
	if err := ch.Render(provider, &buf); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf.Bytes(), nil
}

// LogTicks places ticks at 1, 2 and 5 times each power of ten inside [minLog, maxLog].
// Tick values are log10 prices; labels show the price itself.
func LogTicks(minLog, maxLog float64) []chart.Tick {
	var ticks []chart.Tick
	for exp := math.Floor(minLog); exp <= math.Ceil(maxLog); exp++ {
		for _, m := range []float64{1, 2, 5} {
			v := m * math.Pow(10, exp)
			lv := math.Log10(v)
			if lv < minLog || lv > maxLog {
				continue
			}
			ticks = append(ticks, chart.Tick{Value: lv, Label: strconv.FormatFloat(v, 'f', -1, 64)})
		}
	}
	if len(ticks) >= 2 {
		return ticks
	}
	// Narrow ranges fall between 1-2-5 steps; label the bounds instead.
	return []chart.Tick{
		{Value: minLog, Label: strconv.FormatFloat(math.Pow(10, minLog), 'f', 2, 64)},
		{Value: maxLog, Label: strconv.FormatFloat(math.Pow(10, maxLog), 'f', 2, 64)},
	}
}
