//go:build dashboard

// Command dashboard is a terminal live view of the ledger core's
// Prometheus counters: a polling table showing queue depth and
// command-outcome counters scraped off GET /metrics.
package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rivo/tview"
)

// sample is one parsed Prometheus sample: metric name, its label set
// rendered back to "k=v,k=v", and the gauge/counter value.
type sample struct {
	Name   string
	Labels string
	Value  float64
}

func fetchSamples(names map[string]bool) ([]sample, error) {
	resp, err := http.Get(dashboardURL() + "/metrics")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out []sample
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, labels, value, ok := parseSample(line)
		if !ok || !names[name] {
			continue
		}
		out = append(out, sample{Name: name, Labels: labels, Value: value})
	}
	return out, scanner.Err()
}

// parseSample splits a Prometheus text-exposition line of the form
// metric_name{label="value",...} 1.0 into its parts.
func parseSample(line string) (name, labels string, value float64, ok bool) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return "", "", 0, false
	}
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return "", "", 0, false
	}
	head := fields[0]
	if i := strings.IndexByte(head, '{'); i >= 0 {
		name = head[:i]
		labels = strings.Trim(head[i:], "{}")
	} else {
		name = head
	}
	return name, labels, v, true
}

var watchedMetrics = map[string]bool{
	"ledger_queue_depth":               true,
	"ledger_commands_submitted_total":  true,
	"ledger_commands_processed_total":  true,
	"ledger_occ_retries_total":         true,
	"ledger_occ_timeouts_total":        true,
	"ledger_dead_letters_total":        true,
}

func dashboardURL() string {
	if v := os.Getenv("DASHBOARD_TARGET"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func main() {
	app := tview.NewApplication()
	table := tview.NewTable().SetBorders(true)

	update := func() {
		samples, err := fetchSamples(watchedMetrics)
		if err != nil {
			return
		}
		app.QueueUpdateDraw(func() {
			table.Clear()
			headers := []string{"Metric", "Labels", "Value"}
			for i, h := range headers {
				table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false))
			}
			for i, s := range samples {
				table.SetCell(i+1, 0, tview.NewTableCell(s.Name))
				table.SetCell(i+1, 1, tview.NewTableCell(s.Labels))
				table.SetCell(i+1, 2, tview.NewTableCell(fmt.Sprintf("%g", s.Value)))
			}
		})
	}

	go func() {
		for {
			update()
			time.Sleep(time.Second)
		}
	}()

	if err := app.SetRoot(table, true).Run(); err != nil {
		panic(err)
	}
}
