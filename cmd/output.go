package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/naka-gawa/github-facts/internal/apperr"
	"github.com/naka-gawa/github-facts/internal/config"
)

// printError writes the error followed by its recovery instructions.
func printError(w io.Writer, err error) {
	red := color.New(color.FgRed, color.Bold)
	yellow := color.New(color.FgYellow)

	err = apperr.Wrap(err)
	red.Fprintf(w, "Error: %v\n", err)

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		return
	}
	if appErr.RetryAfter > 0 {
		yellow.Fprintf(w, "Retry after: %s\n", appErr.RetryAfter.Round(time.Second))
	}
	fmt.Fprintln(w, "To fix this:")
	for _, r := range appErr.Recovery {
		fmt.Fprintf(w, "  - %s\n", r)
	}
}

// writeReport prints facts as an indented JSON object or as sorted key=value lines.
func writeReport(w io.Writer, facts map[string]string, format string) error {
	switch format {
	case config.FormatKeyValue:
		keys := make([]string, 0, len(facts))
		for k := range facts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := strings.ReplaceAll(facts[k], "\n", " ")
			if _, err := fmt.Fprintf(w, "%s=%s\n", k, v); err != nil {
				return apperr.OutputFailed(err)
			}
		}
		return nil
	default:
		// Marshal the results into a pretty-printed JSON string; map keys come out sorted.
		jsonData, err := json.MarshalIndent(facts, "", "  ")
		if err != nil {
			return apperr.OutputFailed(fmt.Errorf("failed to marshal results to JSON: %w", err))
		}
		if _, err := fmt.Fprintln(w, string(jsonData)); err != nil {
			return apperr.OutputFailed(err)
		}
		return nil
	}
}
