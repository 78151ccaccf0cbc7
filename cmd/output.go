package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/compozy/mlserver/internal/domain"
)

var (
	// Colors
	accentColor  = lipgloss.Color("#06B6D4") // Cyan
	successColor = lipgloss.Color("#10B981") // Green
	warningColor = lipgloss.Color("#F59E0B") // Yellow
	errorColor   = lipgloss.Color("#EF4444") // Red
	mutedColor   = lipgloss.Color("#6B7280") // Gray

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	successStyle = lipgloss.NewStyle().Foreground(successColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(accentColor).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

func statusStyle(status domain.TagStatus) lipgloss.Style {
	switch status {
	case domain.StatusCurrent:
		return successStyle
	case domain.StatusStale:
		return warningStyle
	default:
		return mutedStyle
	}
}

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, successStyle.Render("✓")+" "+fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, warningStyle.Render("⚠")+" "+fmt.Sprintf(format, args...))
}

func printError(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, errorStyle.Render("✗")+" "+fmt.Sprintf(format, args...))
}

func printStep(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, "  "+warningStyle.Render("→")+" "+fmt.Sprintf(format, args...))
}

// renderStatusTable renders the tag status of every classifier.
func renderStatusTable(statuses []domain.ClassifierTagStatus) string {
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		version := st.VersionString()
		if version == "" {
			version = "-"
		}
		commits := "-"
		if st.CommitsSinceTag != nil {
			commits = strconv.Itoa(*st.CommitsSinceTag)
		}
		tool := "-"
		if st.ToolCommit != "" {
			tool = st.ToolCommit + " ✓"
			if st.ToolDrift {
				tool = st.ToolCommit + " ⚠"
			}
		}
		rows = append(rows, []string{st.Classifier, version, string(st.Status), commits, tool})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers("Classifier", "Version", "Status", "Commits", "MLServer").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 && row >= 0 && row < len(statuses) {
				return statusStyle(statuses[row].Status).Padding(0, 1)
			}
			return cellStyle
		})
	return t.String()
}

// confirm asks a yes/no question on out and reads the answer from in.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
