package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sahilchouksey/exam-parser/app"
	"github.com/sahilchouksey/exam-parser/config"
	"github.com/sahilchouksey/exam-parser/model"
	"github.com/sahilchouksey/exam-parser/services"
	"github.com/sahilchouksey/exam-parser/services/artifacts"
	"github.com/sahilchouksey/exam-parser/services/examparser"
	"github.com/sahilchouksey/exam-parser/services/llm"
	"github.com/spf13/cobra"
)

var (
	parseYear    int
	parseTitle   string
	parseOutput  string
	parseWorkDir string
	parseTimeout time.Duration
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse an exam file and print the question tree as JSON",
	Long: `Parse a PDF, image, markdown or text exam file. PDFs and images go through
the OCR service when OCR_SERVICE_URL is set; PDFs fall back to their text layer.
Debug artifacts and extracted images are written below --work-dir.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadENV(); err != nil {
			log.Printf("No .env file loaded: %v", err)
		}
		env, err := config.Get()
		if err != nil {
			return err
		}

		completer, err := app.NewCompleter(env)
		if err != nil {
			return err
		}
		store, err := artifacts.NewLocalStore(parseWorkDir)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), parseTimeout)
		defer cancel()

		exam, result, err := parseFile(ctx, args[0], completer, store, env)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if parseOutput != "" {
			f, err := os.Create(parseOutput)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			out = f
		}
		if err := writeExam(out, exam); err != nil {
			return err
		}

		printSummary(cmd.ErrOrStderr(), exam, result, parseWorkDir)
		return nil
	},
}

// parseFile stores the file as an exam source and runs the service's
// DB-free extraction path on it
func parseFile(ctx context.Context, filename string, completer llm.Completer, store artifacts.Store, env *config.EnvironmentVariable) (*model.ExamPaper, *examparser.Result, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	exam := &model.ExamPaper{
		ID:             uuid.New().String(),
		Year:           parseYear,
		Title:          parseTitle,
		SourceFilename: filepath.Base(filename),
		Status:         model.ExamStatusProcessing,
	}
	if exam.Title == "" {
		exam.Title = exam.SourceFilename
	}
	exam.SourceKey = artifacts.SourceKey(exam.ID, filename)
	if err := store.Put(ctx, exam.SourceKey, content, artifacts.ContentType(filename)); err != nil {
		return nil, nil, err
	}

	parser := examparser.NewParser(completer, store, app.ParserConfig(env))
	svc := services.NewExamService(nil, parser, store, app.NewOCRClient(env), nil)

	result, err := svc.Extract(ctx, exam, false)
	if err != nil {
		return nil, nil, err
	}
	return exam, result, nil
}

func writeExam(w io.Writer, exam *model.ExamPaper) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(exam)
}

func init() {
	parseCmd.Flags().IntVarP(&parseYear, "year", "y", time.Now().Year(), "Exam year, used in question ids")
	parseCmd.Flags().StringVarP(&parseTitle, "title", "t", "", "Exam title (defaults to the file name)")
	parseCmd.Flags().StringVarP(&parseOutput, "output", "o", "", "Write JSON to this file instead of stdout")
	parseCmd.Flags().StringVar(&parseWorkDir, "work-dir", ".examparse", "Directory for debug artifacts and images")
	parseCmd.Flags().DurationVar(&parseTimeout, "timeout", 30*time.Minute, "Overall time budget for the run")

	rootCmd.AddCommand(parseCmd)
}
