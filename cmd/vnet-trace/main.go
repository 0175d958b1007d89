// Command vnet-trace converts a simulation run's event trace (one
// event.Event per JSON line) to CSV for offline analysis, grounded on
// m-lab-tcp-info/cmd/csvtool (itself a thin gocsv.Marshal wrapper over a
// decoded snapshot slice).
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"github.com/netsimio/vnet/internal/event"
)

var cmd struct {
	Input  string
	Output string
}

var rootCmd = &cobra.Command{
	Use:   "vnet-trace",
	Short: "Convert a JSON-lines event trace to CSV",
	RunE: func(c *cobra.Command, args []string) error {
		return run(cmd.Input, cmd.Output)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.Input, "input", "i", "-", "Trace file to read (- for stdin)")
	rootCmd.Flags().StringVarP(&cmd.Output, "output", "o", "-", "CSV file to write (- for stdout)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// row is the CSV-friendly projection of event.Event: gocsv marshals
// exported fields by name, and event.Event itself carries pointer
// payloads (*packet.Packet, *RetransmitPayload, *ClosePayload) that don't
// round-trip through a flat CSV row, so the trace records only the fields
// every event kind shares.
type row struct {
	Trace       string `csv:"trace"`
	Kind        string `csv:"kind"`
	DeliverTime uint64 `csv:"deliver_time_ms"`
	Owner       string `csv:"owner"`
	Dest        string `csv:"dest"`
}

func toRow(ev event.Event) row {
	return row{
		Trace:       ev.Trace.String(),
		Kind:        ev.Kind.String(),
		DeliverTime: ev.DeliverTime,
		Owner:       ev.Owner.String(),
		Dest:        ev.Dest.String(),
	}
}

func run(inputPath, outputPath string) error {
	in := os.Stdin
	if inputPath != "-" {
		f, err := os.Open(inputPath)
		if err != nil {
			return fmt.Errorf("failed to open trace: %w", err)
		}
		defer f.Close()
		in = f
	}

	rows, err := readTrace(in)
	if err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}

	out := os.Stdout
	if outputPath != "-" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	return gocsv.Marshal(rows, out)
}

func readTrace(r io.Reader) ([]row, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var rows []row
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev event.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode trace line: %w", err)
		}
		rows = append(rows, toRow(ev))
	}
	return rows, scanner.Err()
}
