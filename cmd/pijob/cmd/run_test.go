package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dandantas/pijob/internal/compute"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunJobs_Completes(t *testing.T) {
	var out bytes.Buffer
	err := runJobs(context.Background(), runOptions{
		name:       "pi",
		iterations: 4,
		series:     "leibniz",
		parallel:   1,
		output:     "json",
	}, quietLogger(), &out)
	require.NoError(t, err)

	var outcome compute.Outcome
	require.NoError(t, json.Unmarshal(out.Bytes(), &outcome))
	assert.Equal(t, compute.StateCompleted, outcome.State)
	assert.Equal(t, 4, outcome.IterationsCompleted)
	assert.InDelta(t, 2.8952381, outcome.FinalValue, 1e-6)
}

func TestRunJobs_Parallel(t *testing.T) {
	var out bytes.Buffer
	err := runJobs(context.Background(), runOptions{
		name:       "pi",
		iterations: 3,
		series:     "nilakantha",
		parallel:   3,
		output:     "text",
	}, quietLogger(), &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	for _, name := range []string{"pi-1:", "pi-2:", "pi-3:"} {
		assert.Contains(t, out.String(), name)
	}
}

func TestRunJobs_TimeoutCancels(t *testing.T) {
	var out bytes.Buffer
	start := time.Now()
	err := runJobs(context.Background(), runOptions{
		name:       "slow",
		iterations: 1000,
		interval:   time.Hour,
		series:     "leibniz",
		timeout:    20 * time.Millisecond,
		parallel:   1,
		output:     "json",
	}, quietLogger(), &out)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	var outcome compute.Outcome
	require.NoError(t, json.Unmarshal(out.Bytes(), &outcome))
	assert.True(t, outcome.Cancelled)
	assert.Equal(t, 1, outcome.IterationsCompleted)
}

func TestRunJobs_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts runOptions
	}{
		{"zero parallel", runOptions{name: "pi", series: "leibniz", output: "text"}},
		{"unknown series", runOptions{name: "pi", series: "wallis", parallel: 1, output: "text"}},
		{"unknown output", runOptions{name: "pi", series: "leibniz", parallel: 1, output: "yaml"}},
		{"negative iterations", runOptions{name: "pi", iterations: -1, series: "leibniz", parallel: 1, output: "text"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, runJobs(context.Background(), tt.opts, quietLogger(), io.Discard))
		})
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := RootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "pijob dev"))
}
