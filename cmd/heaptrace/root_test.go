package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/heaplib/memutils"
)

func writeTrace(t *testing.T, text string) string {
	path := filepath.Join(t.TempDir(), "trace.txt")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func runRoot(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

const sampleTrace = `
alloc a 100
alloc b 200
free a
alloc c 4000
`

func TestRootSummary(t *testing.T) {
	out, err := runRoot(t, "--size", "1024", "--strategy", "best-fit", "--json=false", "--mmap=false", writeTrace(t, sampleTrace))
	require.NoError(t, err)
	require.Contains(t, out, "Heap: 1008 usable bytes, AllocationStrategyMinMemory")
	require.Contains(t, out, "Operations: 3 alloc, 0 resize, 1 free, 0 reset")
	require.Contains(t, out, "Failures: 1 alloc, 0 resize")
	require.Contains(t, out, "Live allocations: 1 (208 bytes)")
	require.Contains(t, out, "Free: 800 bytes in 2 ranges, largest payload 680, fragmentation 0.14")
	require.Contains(t, out, "Headers: 24 bytes across 3 blocks")
}

func TestRootJSONMap(t *testing.T) {
	out, err := runRoot(t, "--size", "4096", "--strategy", "first-fit", "--json", "--mmap", writeTrace(t, sampleTrace))
	require.NoError(t, err)

	var parsed struct {
		TotalBytes  int
		Allocations int
		Blocks      []struct {
			Offset int
			Type   string
		}
	}
	require.NoError(t, json.Unmarshal([]byte(out), &parsed))
	require.Equal(t, 4080, parsed.TotalBytes)
	require.Equal(t, 1, parsed.Allocations)
	require.Equal(t, "FREE", parsed.Blocks[0].Type)
}

func TestRootRejectsBadInput(t *testing.T) {
	_, err := runRoot(t, "--strategy", "worst-fit", "--json=false", writeTrace(t, sampleTrace))
	require.Error(t, err)

	_, err = runRoot(t, "--strategy", "first-fit", "--json=false", writeTrace(t, "alloc a\n"))
	require.ErrorContains(t, err, "line 1")

	_, err = runRoot(t, "--size", "100", "--json=false", writeTrace(t, sampleTrace))
	require.Error(t, err)
}

func TestRootRejectsSizeBelowMinimum(t *testing.T) {
	for _, size := range []string{"-1", "0", "1023"} {
		for _, mmap := range []string{"--mmap=false", "--mmap=true"} {
			_, err := runRoot(t, "--size", size, mmap, "--strategy", "first-fit", "--json=false", writeTrace(t, sampleTrace))
			require.ErrorIs(t, err, memutils.ErrHeapTooSmall, "%s %s", size, mmap)
		}
	}
}
