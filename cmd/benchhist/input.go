package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"benchhist/internal/benchmark"
	"benchhist/internal/codec"
	apperrors "benchhist/internal/errors"

	"github.com/spf13/cobra"
)

const (
	formatEntry   = "entry"
	formatGoBench = "gobench"
	formatCatch2  = "catch2"
)

// recordFlags describe how a run record is read from the input.
type recordFlags struct {
	suite   string
	format  string
	tool    string
	commit  string
	message string
	date    int64
	asJSON  bool
}

func (f *recordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.suite, "suite", "s", "", "Suite the run belongs to")
	cmd.Flags().StringVar(&f.format, "format", formatEntry, "Input format: entry (JSON run record), gobench (go test -bench output) or catch2 (Catch2 XML reporter output)")
	cmd.Flags().StringVar(&f.tool, "tool", "", "Tool tag for gobench and catch2 input (default go or catch2)")
	cmd.Flags().StringVar(&f.commit, "commit", "", "Commit id for gobench and catch2 input")
	cmd.Flags().StringVar(&f.message, "message", "", "Commit message for gobench and catch2 input")
	cmd.Flags().Int64Var(&f.date, "date", 0, "Run date in epoch milliseconds for gobench and catch2 input (default now)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print the report as JSON")
	cmd.MarkFlagRequired("suite")
}

// openInput opens the file named by args, or stdin for none or "-".
func openInput(cmd *cobra.Command, args []string) (io.ReadCloser, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, nil
}

func readRecord(cmd *cobra.Command, args []string, f *recordFlags) (benchmark.Record, error) {
	in, err := openInput(cmd, args)
	if err != nil {
		return benchmark.Record{}, err
	}
	defer in.Close()

	switch f.format {
	case formatEntry:
		data, err := io.ReadAll(in)
		if err != nil {
			return benchmark.Record{}, fmt.Errorf("failed to read input: %w", err)
		}
		var rec benchmark.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return benchmark.Record{}, apperrors.New(apperrors.ErrMalformedDocument, "decode", "record", err)
		}
		return rec, nil

	case formatGoBench:
		return harnessRecord(f, benchmark.ToolGo, func() ([]benchmark.Measurement, error) {
			return benchmark.ParseGoBench(in)
		})

	case formatCatch2:
		return harnessRecord(f, benchmark.ToolCatch2, func() ([]benchmark.Measurement, error) {
			return benchmark.ParseCatch2XML(in)
		})

	default:
		return benchmark.Record{}, fmt.Errorf("unsupported input format: %s", f.format)
	}
}

// harnessRecord builds a record from harness output, which carries no
// commit metadata of its own.
func harnessRecord(f *recordFlags, defaultTool string, parse func() ([]benchmark.Measurement, error)) (benchmark.Record, error) {
	if f.commit == "" {
		return benchmark.Record{}, fmt.Errorf("--commit is required for %s input", f.format)
	}
	benches, err := parse()
	if err != nil {
		return benchmark.Record{}, apperrors.New(apperrors.ErrMalformedDocument, "decode", f.format, err)
	}
	if len(benches) == 0 {
		return benchmark.Record{}, fmt.Errorf("no benchmark results in input")
	}
	tool := f.tool
	if tool == "" {
		tool = defaultTool
	}
	at := time.Now()
	if f.date != 0 {
		at = time.UnixMilli(f.date)
	}
	rec := benchmark.NewRecord(f.commit, tool, at, benches)
	rec.Commit.Message = f.message
	return rec, nil
}

func readDocument(cmd *cobra.Command, args []string) (*codec.Document, error) {
	in, err := openInput(cmd, args)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return codec.Decode(in)
}
