package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fisatech/datasheet-harvester/internal/engine"
	"github.com/fisatech/datasheet-harvester/internal/harvester"
)

func newHarvestCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "harvest <urls-file>",
		Short: "Processes a file of product URLs into attribute records",
		Long: `Reads product URLs (one per line; blank lines and # comments are
skipped) and extracts attributes from each page. Results are written as a
JSON array, to stdout unless --output names a file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := buildRuntime(cfgFile)
			if err != nil {
				return err
			}
			defer rt.Close()

			targets, err := readTargets(args[0])
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				return fmt.Errorf("no URLs found in %s", args[0])
			}

			rt.logger.Info("starting harvest",
				zap.Int("urls", len(targets)),
				zap.Int("concurrency", rt.cfg.Engine.ConcurrentRequests))

			results, runErr := rt.engine.ProcessBatch(cmd.Context(), targets, engine.ProcessOptions{
				OnProgress: func(done, total int, url string) {
					rt.logger.Info("progress",
						zap.Int("done", done),
						zap.Int("total", total),
						zap.String("url", url))
				},
			})

			succeeded := 0
			for _, r := range results {
				if r.Successful() {
					succeeded++
				}
			}
			rt.logger.Info("harvest finished",
				zap.Int("succeeded", succeeded),
				zap.Int("failed", len(results)-succeeded),
				zap.Bool("aborted", runErr != nil))

			return emitResults(output, results, runErr)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write results to this file instead of stdout")
	return cmd
}

// readTargets parses a URL list file; the line number becomes the row
// reference carried through to the result.
func readTargets(path string) ([]harvester.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open urls file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var targets []harvester.Target
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		targets = append(targets, harvester.Target{
			URL:    text,
			RowRef: fmt.Sprintf("line-%d", line),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read urls file: %w", err)
	}
	return targets, nil
}

// emitResults writes whatever results the batch produced before
// propagating a batch error, so an aborted run still leaves one result
// per input on disk.
func emitResults(path string, results []*harvester.AttemptResult, runErr error) error {
	if err := writeResults(path, results); err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("harvest aborted: %w", runErr)
	}
	return nil
}

func writeResults(path string, results []*harvester.AttemptResult) error {
	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
