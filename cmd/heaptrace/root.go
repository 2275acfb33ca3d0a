package main

import (
	"fmt"
	"io"
	"os"

	cerrors "github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/heaplib/heap"
	"github.com/vkngwrapper/heaplib/internal/trace"
	"github.com/vkngwrapper/heaplib/memutils"
	"golang.org/x/exp/slog"
)

var (
	heapSize    int
	strategyArg string
	useMmap     bool
	jsonOut     bool
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "heaptrace [trace-file]",
	Short: "Replay an allocation trace against a heap",
	Long: `heaptrace formats a region as a heap and replays a trace of named
allocations against it, one operation per line:

  alloc <name> <size>
  resize <name> <size>
  free <name>
  reset

Every allocation is filled with a pattern derived from its name, and the
pattern is checked after each resize. Requests the heap cannot satisfy are
counted rather than treated as errors. With no file, or "-", the trace is
read from standard input.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTrace,
}

func init() {
	rootCmd.Flags().IntVarP(&heapSize, "size", "s", 64*1024, "Size in bytes of the heap region")
	rootCmd.Flags().StringVar(&strategyArg, "strategy", "first-fit", "Placement strategy: first-fit or best-fit")
	rootCmd.Flags().BoolVar(&useMmap, "mmap", false, "Back the heap with an anonymous memory mapping")
	rootCmd.Flags().BoolVar(&jsonOut, "json", false, "Print the final block map as JSON")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every heap operation to stderr")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.HandlerOptions{Level: level}.NewTextHandler(os.Stderr))
}

func readTrace(args []string) ([]trace.Op, error) {
	var input io.Reader = os.Stdin
	if len(args) == 1 && args[0] != "-" {
		file, err := os.Open(args[0])
		if err != nil {
			return nil, err
		}
		defer file.Close()
		input = file
	}

	return trace.Parse(input)
}

func runTrace(cmd *cobra.Command, args []string) error {
	strategy, err := heap.ParseAllocationStrategy(strategyArg)
	if err != nil {
		return err
	}

	if heapSize < heap.MinHeapSize {
		return cerrors.Wrapf(memutils.ErrHeapTooSmall, "--size %d, minimum is %d", heapSize, heap.MinHeapSize)
	}

	ops, err := readTrace(args)
	if err != nil {
		return err
	}

	var region []byte
	release := func() error { return nil }
	if useMmap {
		region, release, err = mapRegion(heapSize)
		if err != nil {
			return err
		}
	} else {
		region = make([]byte, heapSize)
	}
	defer func() {
		if err := release(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to release heap region: %v\n", err)
		}
	}()

	logger := newLogger()
	h, err := heap.Init(region, heap.CreateOptions{Strategy: strategy, Logger: logger})
	if err != nil {
		return err
	}

	result, err := trace.NewReplayer(h, logger).Replay(cmd.Context(), ops)
	if err != nil {
		return err
	}

	if err := h.Validate(); err != nil {
		return cerrors.Wrap(err, "heap is inconsistent after replay")
	}

	out := cmd.OutOrStdout()
	if jsonOut {
		writer := jwriter.NewWriter()
		h.PrintDetailedMap(&writer)
		if err := writer.Error(); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out, string(writer.Bytes()))
		return err
	}

	printSummary(out, h, result)
	return nil
}

func printSummary(out io.Writer, h *heap.Heap, result *trace.Result) {
	fmt.Fprintf(out, "Heap: %d usable bytes, %s\n", h.Size(), h.Strategy())
	fmt.Fprintf(out, "Operations: %d alloc, %d resize, %d free, %d reset\n",
		result.Allocs, result.Resizes, result.Frees, result.Resets)
	fmt.Fprintf(out, "Failures: %d alloc, %d resize\n", result.AllocFailures, result.ResizeFailures)
	fmt.Fprintf(out, "Live allocations: %d (%d bytes)\n", result.Live, result.Stats.AllocationBytes)
	fmt.Fprintf(out, "Free: %d bytes in %d ranges, largest payload %d, fragmentation %.2f\n",
		result.Stats.FreeBytes(), result.Stats.FreeRangeCount, h.LargestFreeSize(), result.Stats.Fragmentation())
	fmt.Fprintf(out, "Headers: %d bytes across %d blocks\n",
		result.Stats.HeaderBytes, result.Stats.AllocationCount+result.Stats.FreeRangeCount)
}
