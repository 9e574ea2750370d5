package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/sahilchouksey/exam-parser/model"
	"github.com/sahilchouksey/exam-parser/services/examparser"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39")).
			Padding(0, 1)
)

// printSummary renders the run outcome as a box on w
func printSummary(w io.Writer, exam *model.ExamPaper, result *examparser.Result, workDir string) {
	chunks := successStyle.Render(fmt.Sprintf("%d ok", result.ChunkCount-result.FailedChunks))
	if result.FailedChunks > 0 {
		chunks += " " + warnStyle.Render(fmt.Sprintf("%d failed", result.FailedChunks))
	}

	score := "-"
	if exam.TotalScore != nil {
		score = strconv.FormatFloat(*exam.TotalScore, 'f', -1, 64)
	}

	content := fmt.Sprintf("%s\n%s %s\n%s %d (%d records)\n%s %s\n%s %s\n%s %.1fs\n%s %s",
		titleStyle.Render(exam.Title),
		dimStyle.Render("Strategy:"), string(result.Strategy),
		dimStyle.Render("Questions:"), exam.QuestionCount, result.RecordCount,
		dimStyle.Render("Chunks:"), chunks,
		dimStyle.Render("Total score:"), score,
		dimStyle.Render("Duration:"), result.Duration.Seconds(),
		dimStyle.Render("Artifacts:"), workDir,
	)
	fmt.Fprintln(w, boxStyle.Render(content))
}
