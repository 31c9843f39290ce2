package server

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/julienschmidt/httprouter"
	"github.com/lotcam/lotcam/server/configdb"
)

// httpReportOccupancy renders an occupancy timeline from the hourly samples as
// a self-contained HTML page. No client-side build, just go-echarts.
// Query parameter: hours (default 24).
func (s *Server) httpReportOccupancy(w http.ResponseWriter, r *http.Request, params httprouter.Params, user *configdb.User) {
	hours := www.QueryInt(r, "hours")
	if hours <= 0 {
		hours = 24
	}
	if hours > 24*90 {
		hours = 24 * 90
	}
	to := time.Now()
	from := to.Add(-time.Duration(hours) * time.Hour)
	samples, err := s.historyDB.Samples(from, to)
	www.Check(err)

	x := make([]string, 0, len(samples))
	occupied := make([]opts.LineData, 0, len(samples))
	free := make([]opts.LineData, 0, len(samples))
	for _, sample := range samples {
		x = append(x, sample.At.Get().Local().Format("Jan 2 15:04"))
		occupied = append(occupied, opts.LineData{Value: sample.OccupiedCount})
		free = append(free, opts.LineData{Value: sample.FreeCount})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Lot Occupancy", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Lot occupancy", Subtitle: fmt.Sprintf("last %v hours, %v samples", hours, len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x).
		AddSeries("Occupied", occupied).
		AddSeries("Free", free).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		www.PanicServerErrorf("Failed to render occupancy chart: %v", err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
