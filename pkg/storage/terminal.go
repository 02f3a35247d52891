package storage

import (
	"context"
	"fmt"
	"io"
)

// Terminal prints records as aligned text.
type Terminal struct {
	out io.Writer
}

// TerminalTimestamp is used as a format to display only the time.
const TerminalTimestamp = "15:04:05.999"

// NewTerminal creates a terminal sink writing to out.
func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

// Name implements Sink.
func (t *Terminal) Name() string { return "terminal" }

// Commit implements Sink.
func (t *Terminal) Commit(_ context.Context, data []Record) error {
	for _, r := range data {
		if _, err := fmt.Fprintf(t.out, "%-8s%-8s%12.4f%16.8f%16.8f%16s\n",
			"Index", r.Underlying, r.Value, r.Sigma2, r.Sigma2Raw, r.Timestamp.Local().Format(TerminalTimestamp)); err != nil {
			return err
		}
	}
	return nil
}

// Close implements Sink.
func (t *Terminal) Close() error { return nil }
