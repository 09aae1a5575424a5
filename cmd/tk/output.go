package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/viper"

	"taskrank/internal/domain"
	"taskrank/internal/importer"
	"taskrank/internal/priority"
	"taskrank/internal/repo"
)

var priorityStyles = map[domain.Priority]lipgloss.Style{
	domain.PriorityHigh:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")),
	domain.PriorityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD93D")),
	domain.PriorityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("#6BCB77")),
}

var dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

// parseDueFlag accepts the formats imported cards use plus "+Nd" and "+Nh" offsets from now.
func parseDueFlag(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("--due required")
	}
	if strings.HasPrefix(s, "+") && len(s) > 2 {
		n, err := strconv.Atoi(s[1 : len(s)-1])
		if err != nil || n < 0 {
			return time.Time{}, fmt.Errorf("invalid due offset %q", s)
		}
		switch s[len(s)-1] {
		case 'd':
			return now.Add(time.Duration(n) * 24 * time.Hour), nil
		case 'h':
			return now.Add(time.Duration(n) * time.Hour), nil
		}
		return time.Time{}, fmt.Errorf("invalid due offset %q (use d or h)", s)
	}
	t, err := importer.ParseDue(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due date %q", s)
	}
	return t, nil
}

func listFilters(ownerID, prio, status string, limit int) (repo.TaskFilters, error) {
	f := repo.TaskFilters{OwnerID: ownerID, Limit: limit}
	if prio != "" {
		p, err := domain.ParsePriority(prio)
		if err != nil {
			return f, err
		}
		f.Priority = p
	}
	if status != "" {
		st, err := domain.ParseStatus(status)
		if err != nil {
			return f, err
		}
		f.Status = st
	}
	return f, nil
}

func dueLabel(due, now time.Time) string {
	days := priority.DaysUntil(due, now)
	switch {
	case days < 0:
		return fmt.Sprintf("overdue %dd", -days)
	case days == 0:
		return "today"
	case days == 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %dd", days)
	}
}

func renderTasks(w io.Writer, tasks []domain.Task, now time.Time) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no tasks"))
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "Name", "Priority", "Score", "Effort", "Due", "Status"})
	for _, t := range tasks {
		prio := string(t.Priority)
		if st, ok := priorityStyles[t.Priority]; ok && t.Status == domain.StatusPending {
			prio = st.Render(prio)
		}
		due := dueLabel(t.DueDate, now)
		if t.Status == domain.StatusCompleted {
			due = dimStyle.Render(due)
		}
		tw.AppendRow(table.Row{t.ID, t.Name, prio, t.PriorityScore, t.Effort, due, t.Status})
	}
	tw.Render()
}

func renderRuns(w io.Writer, runs []domain.ImportRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no import runs"))
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Started", "Source", "Fetched", "Written", "Dropped", "Skipped", "Error"})
	for _, r := range runs {
		tw.AppendRow(table.Row{r.StartedAt, r.Source, r.Fetched, r.Written, r.Dropped, r.Skipped, r.Error})
	}
	tw.Render()
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
