package ui

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"

	"github.com/timmy/predictboard/internal/domain"
	"github.com/timmy/predictboard/internal/version"
)

// HomePage explains what the dashboard is for.
func HomePage() gomponents.Node {
	return appPage("Welcome", "home",
		html.Div(html.Class("card"),
			html.P(gomponents.Text("Use this dashboard to:")),
			html.Ul(
				html.Li(gomponents.Text("Browse raw tables via Athena")),
				html.Li(gomponents.Text("Chart observed prices against the latest forecast per ticker")),
				html.Li(gomponents.Text("Review recent queries and download their results")),
				html.Li(gomponents.Text("Track app version and metadata")),
			),
		),
	)
}

// PredictionsView is the state of the table browser.
type PredictionsView struct {
	Tables        []string
	SelectedTable string
	Limit         int
	MinRows       int
	MaxRows       int
	Statement     string
	Result        *domain.ResultTable
	Notice        string
	Cached        bool
	RecordID      string
	Error         string
}

// PredictionsPage renders the table picker, row-limit slider and results.
func PredictionsPage(v PredictionsView) gomponents.Node {
	options := make([]gomponents.Node, 0, len(v.Tables))
	for _, t := range v.Tables {
		options = append(options, optionSelectedValue(t, v.SelectedTable, t))
	}

	form := html.Div(html.Class("card"),
		html.Form(html.Method("post"), html.Action("/predictions"),
			html.Label(html.For("table"), gomponents.Text("Select table")),
			html.Select(html.ID("table"), html.Name("table"), gomponents.Group(options)),
			html.Label(html.For("limit"),
				gomponents.Text("Number of rows: "),
				html.Span(html.ID("limit-value"), gomponents.Text(strconv.Itoa(v.Limit))),
			),
			html.Input(
				html.Type("range"), html.ID("limit"), html.Name("limit"),
				html.Min(strconv.Itoa(v.MinRows)), html.Max(strconv.Itoa(v.MaxRows)),
				html.Value(strconv.Itoa(v.Limit)),
				gomponents.Attr("oninput", "document.getElementById('limit-value').textContent=this.value"),
			),
			html.Div(html.Button(html.Type("submit"), html.Class("btn"), gomponents.Text("Run Query"))),
		),
	)

	var result gomponents.Node
	switch {
	case v.Error != "":
		result = errorCard(v.Error)
	case v.Result != nil:
		result = html.Div(noticeCard(v.Notice), resultCard(v))
	}

	return appPage("Predictions", "predictions",
		html.P(html.Class("muted"), gomponents.Text("Pick a table and a row limit to preview it from Athena.")),
		form,
		result,
	)
}

func resultCard(v PredictionsView) gomponents.Node {
	meta := fmt.Sprintf("Returned %d rows", v.Result.Len())
	if v.Cached {
		meta += " (cached)"
	}

	var download gomponents.Node
	if v.RecordID != "" {
		download = html.A(html.Href("/api/v1/queries/"+url.PathEscape(v.RecordID)+"/results.csv"), gomponents.Text("Download CSV"))
	}

	return html.Div(html.Class("card"),
		html.P(gomponents.Text(meta), gomponents.Text(" "), download),
		html.Pre(html.Class("muted"), gomponents.Text(v.Statement)),
		DataTable(v.Result),
	)
}

// DataTable renders a result table; null cells are shown distinctly from empty strings.
func DataTable(t *domain.ResultTable) gomponents.Node {
	header := make([]gomponents.Node, 0, len(t.Columns))
	for _, c := range t.Columns {
		header = append(header, html.Th(gomponents.Text(c)))
	}
	rows := make([]gomponents.Node, 0, len(t.Rows))
	for _, row := range t.Rows {
		cells := make([]gomponents.Node, 0, len(row))
		for _, cell := range row {
			if !cell.Valid {
				cells = append(cells, html.Td(html.Class("null"), gomponents.Text("null")))
				continue
			}
			cells = append(cells, html.Td(gomponents.Text(cell.String)))
		}
		rows = append(rows, html.Tr(gomponents.Group(cells)))
	}
	return html.Table(
		html.THead(html.Tr(gomponents.Group(header))),
		html.TBody(gomponents.Group(rows)),
	)
}

// ForecastsView is the state of the forecast page.
type ForecastsView struct {
	Tickers  []string
	Selected string
	// Span is the number of days between the first and last point.
	Span     int
	FromDay  int
	ToDay    int
	Start    time.Time
	Notice   string
	Error    string
}

// ChartURL returns the chart image address for the selected window.
func (v ForecastsView) ChartURL() string {
	q := url.Values{}
	if !v.Start.IsZero() {
		q.Set("from", v.Start.AddDate(0, 0, v.FromDay).Format("2006-01-02"))
		q.Set("to", v.Start.AddDate(0, 0, v.ToDay).Format("2006-01-02"))
	}
	u := "/api/v1/tickers/" + url.PathEscape(v.Selected) + "/chart.png"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// ForecastsPage renders the ticker picker and, once chosen, the chart with its window slider.
func ForecastsPage(v ForecastsView) gomponents.Node {
	options := make([]gomponents.Node, 0, len(v.Tickers))
	for _, t := range v.Tickers {
		options = append(options, optionSelectedValue(t, v.Selected, t))
	}

	picker := html.Div(html.Class("card"),
		html.Form(html.Method("get"), html.Action("/forecasts"),
			html.Label(html.For("ticker"), gomponents.Text("Select ticker")),
			html.Select(html.ID("ticker"), html.Name("ticker"), gomponents.Group(options)),
			html.Div(html.Button(html.Type("submit"), html.Class("btn"), gomponents.Text("Show forecast"))),
		),
	)

	var body gomponents.Node
	switch {
	case v.Error != "":
		body = errorCard(v.Error)
	case v.Notice != "":
		body = noticeCard(v.Notice)
	case v.Selected != "":
		body = html.Div(html.Class("card"),
			html.Img(html.Class("chart"), html.Src(v.ChartURL()), html.Alt(v.Selected+" forecast")),
			windowSlider(v),
		)
	}

	return appPage("Forecasts", "forecasts", picker, body)
}

func windowSlider(v ForecastsView) gomponents.Node {
	span := strconv.Itoa(v.Span)
	label := func(day int) string {
		return v.Start.AddDate(0, 0, day).Format("2006-01-02")
	}
	return html.Form(html.Method("get"), html.Action("/forecasts"),
		html.Input(html.Type("hidden"), html.Name("ticker"), html.Value(v.Selected)),
		html.Label(html.For("from_day"), gomponents.Text("From "+label(v.FromDay))),
		html.Input(html.Type("range"), html.ID("from_day"), html.Name("from_day"),
			html.Min("0"), html.Max(span), html.Value(strconv.Itoa(v.FromDay))),
		html.Label(html.For("to_day"), gomponents.Text("To "+label(v.ToDay))),
		html.Input(html.Type("range"), html.ID("to_day"), html.Name("to_day"),
			html.Min("0"), html.Max(span), html.Value(strconv.Itoa(v.ToDay))),
		html.Div(html.Button(html.Type("submit"), html.Class("btn"), gomponents.Text("Apply range"))),
	)
}

// HistoryPage lists recent queries.
func HistoryPage(records []domain.QueryRecord, errMsg string) gomponents.Node {
	if errMsg != "" {
		return appPage("History", "history", errorCard(errMsg))
	}
	if len(records) == 0 {
		return appPage("History", "history", noticeCard("No queries have run yet."))
	}

	rows := make([]gomponents.Node, 0, len(records))
	for _, rec := range records {
		var download gomponents.Node = gomponents.Text("-")
		if rec.Status == domain.JobStatusSucceeded && rec.OutputURI != "" {
			download = html.A(html.Href("/api/v1/queries/"+url.PathEscape(rec.ID)+"/results.csv"), gomponents.Text("CSV"))
		}
		rows = append(rows, html.Tr(
			html.Td(gomponents.Text(formatTime(rec.StartedAt))),
			html.Td(gomponents.Text(string(rec.Purpose))),
			html.Td(gomponents.Text(string(rec.Status))),
			html.Td(gomponents.Text(strconv.Itoa(rec.RowCount))),
			html.Td(gomponents.Text(strconv.FormatInt(rec.DurationMs, 10))),
			html.Td(gomponents.Text(rec.Reason)),
			html.Td(download),
		))
	}

	return appPage("History", "history",
		html.Div(html.Class("card"),
			html.Table(
				html.THead(html.Tr(
					html.Th(gomponents.Text("Started")),
					html.Th(gomponents.Text("Purpose")),
					html.Th(gomponents.Text("Status")),
					html.Th(gomponents.Text("Rows")),
					html.Th(gomponents.Text("ms")),
					html.Th(gomponents.Text("Reason")),
					html.Th(gomponents.Text("Result")),
				)),
				html.TBody(gomponents.Group(rows)),
			),
		),
	)
}

// VersionPage shows build metadata.
func VersionPage(info version.Info) gomponents.Node {
	return appPage("Version", "version",
		html.Div(html.Class("card"),
			html.Dl(
				html.Dt(gomponents.Text("Version")), html.Dd(gomponents.Text(info.Version)),
				html.Dt(gomponents.Text("Commit")), html.Dd(gomponents.Text(info.Commit)),
				html.Dt(gomponents.Text("Built")), html.Dd(gomponents.Text(info.BuildTime)),
				html.Dt(gomponents.Text("Go")), html.Dd(gomponents.Text(info.GoVersion)),
			),
		),
	)
}
