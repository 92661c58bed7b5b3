package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/obby/fs-coalescer/internal/patterns"
	"github.com/obby/fs-coalescer/internal/queue"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
)

type replayOptions struct {
	prune  []string
	format string
	diff   bool
}

func newReplayCmd() *cobra.Command {
	var opts replayOptions

	c := &cobra.Command{
		Use:   "replay [file|-]",
		Short: "Coalesce a recorded event log",
		Long: `Read events as JSON lines ({"kind":"created","path":"/a"}), add them to an
empty queue in order and print the coalesced result. Reads stdin when no
file or "-" is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			in := c.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runReplay(in, c.OutOrStdout(), opts)
		},
	}

	c.Flags().StringArrayVar(&opts.prune, "prune", nil, "drop events below this directory (repeatable)")
	c.Flags().StringVar(&opts.format, "format", "json", "output format: json or text")
	c.Flags().BoolVar(&opts.diff, "diff", false, "show a line diff of the input against the coalesced queue")
	return c
}

func runReplay(r io.Reader, w io.Writer, opts replayOptions) error {
	if opts.format != "json" && opts.format != "text" {
		return fmt.Errorf("unknown format %q (valid: json, text)", opts.format)
	}

	q := queue.New()
	var raw []queue.Event
	dec := json.NewDecoder(r)
	for n := 1; ; n++ {
		var e queue.Event
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("event %d: %w", n, err)
		}
		if e.Path == "" {
			return fmt.Errorf("event %d: missing path", n)
		}
		raw = append(raw, e)
		q.Add(e)
	}

	for _, dir := range opts.prune {
		q.Filter(patterns.Under(dir))
	}

	if opts.diff {
		return writeDiff(w, raw, q.Items())
	}

	if opts.format == "text" {
		for _, e := range q.Items() {
			if _, err := fmt.Fprintln(w, e.String()); err != nil {
				return err
			}
		}
		return nil
	}

	enc := json.NewEncoder(w)
	for _, e := range q.Items() {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

// writeDiff prints one line per event, prefixed "-" when coalescing removed
// it, "+" when coalescing produced it and " " when it survived unchanged.
func writeDiff(w io.Writer, raw, coalesced []queue.Event) error {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(eventLines(raw), eventLines(coalesced))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			if _, err := io.WriteString(w, prefix+line); err != nil {
				return err
			}
		}
	}
	return nil
}

func eventLines(events []queue.Event) string {
	var sb strings.Builder
	for _, e := range events {
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}
