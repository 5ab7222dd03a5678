package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// exportOutput is the destination file for the export command
var exportOutput string

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write JSONL to this file instead of stdout")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export training data",
	Long: `Export qualifying interactions as JSONL fine-tuning examples.

The daemon selects interactions whose linked feedback clears the
satisfaction cutoff and streams them one JSON object per line.

Examples:
  # Stream to stdout
  fwctl export

  # Write to a file
  fwctl export --output training.jsonl

  # Pipe into a sampler
  fwctl export | shuf -n 1000 > sample.jsonl`,
	RunE: runExport,
}

// lineCountingWriter counts newline-terminated records as they pass through.
type lineCountingWriter struct {
	dst   io.Writer
	lines int
}

func (w *lineCountingWriter) Write(p []byte) (int, error) {
	for _, c := range p {
		if c == '\n' {
			w.lines++
		}
	}
	return w.dst.Write(p)
}

// runExport handles the export command
func runExport(cmd *cobra.Command, args []string) error {
	var dst io.Writer = os.Stdout
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		dst = f
	}

	url := fmt.Sprintf("%s/api/v1/export/training", serverURL)

	// Exports can be large; allow well beyond the usual API timeout.
	client := &http.Client{
		Timeout: 5 * time.Minute,
	}

	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	counter := &lineCountingWriter{dst: dst}
	if _, err := io.Copy(counter, resp.Body); err != nil {
		return fmt.Errorf("failed to stream export: %w", err)
	}

	if exportOutput != "" {
		fmt.Printf("Exported %d training example(s) to %s\n", counter.lines, exportOutput)
	} else {
		fmt.Fprintf(os.Stderr, "[fwctl] Exported %d training example(s)\n", counter.lines)
	}

	return nil
}
