package main

import (
	"fmt"
	"os"

	"github.com/sahilchouksey/exam-parser/services"
	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean <file>",
	Short: "Print the cleaned form of an OCR markdown file",
	Long: `Apply the same cleaning the pipeline runs before extraction: line ending
normalization, header/footer removal, base64 image stripping and blank line
collapsing. Useful for checking what the LLM will actually see.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}

		result := services.NewTextCleaner("").Clean(string(raw))
		fmt.Fprintln(cmd.OutOrStdout(), result.Text)
		fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render(fmt.Sprintf("%d -> %d bytes", len(raw), len(result.Text))))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
}
