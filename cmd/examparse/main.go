package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "examparse",
	Short: "Extract structured questions from OCR'd exam papers",
	Long: `examparse runs the exam extraction pipeline locally, without the API server
or database. LLM, OCR and parser settings are read from the same environment
variables (or .env file) as the server.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
