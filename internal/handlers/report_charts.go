package handlers

import (
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"abapractice/internal/progress"
)

// ReportCharts are ECharts option objects ready for the browser to render
type ReportCharts struct {
	DailyAverage   map[string]interface{} `json:"daily_average"`
	PromptLevels   map[string]interface{} `json:"prompt_levels"`
	GoalCompletion map[string]interface{} `json:"goal_completion"`
}

type chartJSON interface {
	Validate()
	JSON() map[string]interface{}
}

// optionJSON copies the axis data into place before serializing
func optionJSON(c chartJSON) map[string]interface{} {
	c.Validate()
	return c.JSON()
}

func buildReportCharts(report progress.Report) ReportCharts {
	return ReportCharts{
		DailyAverage:   optionJSON(dailyAverageChart(report.DailyAverage)),
		PromptLevels:   optionJSON(promptLevelChart(report.PromptHistogram)),
		GoalCompletion: optionJSON(goalCompletionChart(report.GoalCompletion)),
	}
}

func percentAxis() opts.YAxis {
	return opts.YAxis{Type: "value", Min: 0, Max: 100, AxisLabel: &opts.AxisLabel{Formatter: "{value}%"}}
}

func dailyAverageChart(days []progress.DailyAverage) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Média diária de acertos"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
		charts.WithYAxisOpts(percentAxis()),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)

	dates := make([]string, 0, len(days))
	items := make([]opts.LineData, 0, len(days))
	for _, d := range days {
		dates = append(dates, d.Date)
		items = append(items, opts.LineData{Value: d.Percentage})
	}

	line.SetXAxis(dates).
		AddSeries("Acertos", items).
		SetSeriesOptions(charts.WithLineStyleOpts(opts.LineStyle{Width: 2}))
	return line
}

func promptLevelChart(counts []progress.PromptCount) *charts.Pie {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Níveis de dica"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "item"}),
	)

	items := make([]opts.PieData, 0, len(counts))
	for _, c := range counts {
		items = append(items, opts.PieData{Name: c.Label, Value: c.Count})
	}
	pie.AddSeries("Dicas", items)
	return pie
}

func goalCompletionChart(goals []progress.GoalCompletion) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Conclusão de metas"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
		charts.WithYAxisOpts(percentAxis()),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)

	names := make([]string, 0, len(goals))
	latest := make([]opts.BarData, 0, len(goals))
	targets := make([]opts.BarData, 0, len(goals))
	for _, g := range goals {
		names = append(names, g.GoalName)
		// "-" leaves a gap for goals that were never measured
		var value interface{} = "-"
		if g.Percentage != nil {
			value = *g.Percentage
		}
		latest = append(latest, opts.BarData{Value: value})
		targets = append(targets, opts.BarData{Value: g.TargetPercentage})
	}

	bar.SetXAxis(names).
		AddSeries("Último resultado", latest).
		AddSeries("Meta", targets)
	return bar
}
