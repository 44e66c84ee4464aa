// Package ui renders the dashboard pages as server-side HTML.
package ui

import (
	"time"

	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"
)

type navItem struct {
	Label string
	Href  string
	Key   string
}

var navItems = []navItem{
	{Label: "HOME", Href: "/", Key: "home"},
	{Label: "PREDICTIONS", Href: "/predictions", Key: "predictions"},
	{Label: "FORECASTS", Href: "/forecasts", Key: "forecasts"},
	{Label: "HISTORY", Href: "/history", Key: "history"},
	{Label: "VERSION", Href: "/version", Key: "version"},
}

const stylesheet = `
body{font-family:system-ui,sans-serif;margin:0;color:#1f2328;background:#f6f8fa}
.shell{display:flex;min-height:100vh}
.sidebar{width:200px;background:#24292f;color:#fff;padding:16px}
.sidebar a{display:block;color:#d0d7de;text-decoration:none;padding:6px 0}
.sidebar a.active{color:#fff;font-weight:600}
.content{flex:1;padding:24px}
.card{background:#fff;border:1px solid #d0d7de;border-radius:6px;padding:16px;margin-bottom:16px}
.card.error{border-color:#cf222e;color:#cf222e}
.card.notice{border-color:#9a6700;color:#9a6700}
.muted{color:#656d76;font-size:13px}
table{border-collapse:collapse;font-size:13px}
th,td{border:1px solid #d0d7de;padding:4px 8px;text-align:left}
td.null{color:#8c959f;font-style:italic}
label{display:block;margin:8px 0 4px}
.btn{margin-top:12px;padding:6px 14px}
img.chart{max-width:100%}
`

func appPage(title, active string, body ...gomponents.Node) gomponents.Node {
	nav := make([]gomponents.Node, 0, len(navItems))
	for _, item := range navItems {
		className := ""
		if item.Key == active {
			className = "active"
		}
		nav = append(nav, html.A(html.Href(item.Href), html.Class(className), gomponents.Text(item.Label)))
	}

	return html.Doctype(html.HTML(
		html.Lang("en"),
		html.Head(
			html.Meta(html.Charset("utf-8")),
			html.Meta(html.Name("viewport"), html.Content("width=device-width, initial-scale=1")),
			html.TitleEl(gomponents.Text(title+" | predictboard")),
			html.StyleEl(gomponents.Raw(stylesheet)),
		),
		html.Body(
			html.Div(html.Class("shell"),
				html.Nav(html.Class("sidebar"),
					html.Strong(gomponents.Text("Navigation")),
					gomponents.Group(nav),
				),
				html.Main(html.Class("content"),
					html.H1(gomponents.Text(title)),
					gomponents.Group(body),
				),
			),
		),
	))
}

func errorCard(message string) gomponents.Node {
	return html.Div(html.Class("card error"),
		html.Strong(gomponents.Text("Error: ")),
		gomponents.Text(message),
	)
}

func noticeCard(message string) gomponents.Node {
	if message == "" {
		return nil
	}
	return html.Div(html.Class("card notice"), gomponents.Text(message))
}

func optionSelectedValue(value, selected, label string) gomponents.Node {
	if value == selected {
		return html.Option(html.Value(value), html.Selected(), gomponents.Text(label))
	}
	return html.Option(html.Value(value), gomponents.Text(label))
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Format(time.RFC3339)
}
