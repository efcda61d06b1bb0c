package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/MrWong99/kwstune/internal/history"
	"github.com/MrWong99/kwstune/internal/ledger"
	"github.com/MrWong99/kwstune/internal/tuning"
)

// styles holds the terminal styles of the report output.
type styles struct {
	Title  lipgloss.Style
	Line   lipgloss.Style
	Error  lipgloss.Style
	Best   lipgloss.Style
	Header lipgloss.Style
	Cell   lipgloss.Style
	Border lipgloss.Style
	Dim    lipgloss.Style
}

var (
	primary = lipgloss.Color("#00ff9f")
	dim     = lipgloss.Color("#6e7681")
	danger  = lipgloss.Color("#ff5f5f")
)

func newStyles() styles {
	return styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(primary),
		Line:   lipgloss.NewStyle(),
		Error:  lipgloss.NewStyle().Bold(true).Foreground(danger),
		Best:   lipgloss.NewStyle().Bold(true).Foreground(primary),
		Header: lipgloss.NewStyle().Bold(true).Foreground(primary).Padding(0, 1),
		Cell:   lipgloss.NewStyle().Padding(0, 1),
		Border: lipgloss.NewStyle().Foreground(primary),
		Dim:    lipgloss.NewStyle().Foreground(dim),
	}
}

func (s styles) table(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.Header
			}
			return s.Cell
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

// renderStep formats one step result: report lines, a table of the
// evaluated trials and the resume hint.
func renderStep(s styles, res tuning.Result) string {
	var b strings.Builder
	for _, line := range res.Report {
		switch {
		case strings.HasPrefix(line, "Error:"):
			b.WriteString(s.Error.Render(line))
		case strings.Contains(line, "Best threshold:"):
			b.WriteString(s.Best.Render(line))
		default:
			b.WriteString(s.Line.Render(line))
		}
		b.WriteByte('\n')
	}
	if len(res.Trials) > 0 {
		rows := make([][]string, 0, len(res.Trials))
		for _, t := range res.Trials {
			c := t.Counts
			rows = append(rows, []string{
				t.Keyword,
				strconv.Itoa(t.Threshold),
				fmt.Sprintf("%d/%d", c.TotalDetected, c.TotalInstances),
				strconv.Itoa(c.TruePositives),
				strconv.Itoa(c.FalsePositives),
				strconv.Itoa(c.FalseNegatives),
				ratio(t.Precision),
				ratio(t.Recall),
				ratio(t.F1),
			})
		}
		b.WriteString(s.table([]string{"keyword", "threshold", "detected", "tp", "fp", "fn", "precision", "recall", "f1"}, rows))
		b.WriteByte('\n')
	}
	switch {
	case res.NextToken != "":
		b.WriteString(s.Dim.Render("next token: ") + res.NextToken + "\n")
	case res.Err == nil:
		b.WriteString(s.Dim.Render("search finished") + "\n")
	}
	return b.String()
}

func renderTrials(s styles, rows []ledger.Trial) string {
	if len(rows) == 0 {
		return s.Dim.Render("ledger is empty") + "\n"
	}
	out := make([][]string, 0, len(rows))
	for i, t := range rows {
		out = append(out, []string{
			strconv.Itoa(i + 1),
			t.Keyword,
			strconv.Itoa(t.Threshold),
			ratio(t.Precision),
			ratio(t.Recall),
			ratio(t.F1),
		})
	}
	return s.table([]string{"#", "keyword", "threshold", "precision", "recall", "f1"}, out) + "\n"
}

func renderHistory(s styles, records []history.Record) string {
	if len(records) == 0 {
		return s.Dim.Render("no finished runs") + "\n"
	}
	out := make([][]string, 0, len(records))
	for _, r := range records {
		out = append(out, []string{
			r.Timestamp.Format("2006-01-02 15:04:05"),
			strings.Join(r.Keywords, ","),
			strconv.Itoa(r.BestThreshold),
			r.Description,
		})
	}
	return s.table([]string{"finished", "keywords", "best", "description"}, out) + "\n"
}

func ratio(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }
