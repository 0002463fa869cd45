package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os/exec"
	"strconv"
	"time"

	"github.com/driftsec/fuzzfleet/pkg/errdefs"
	"github.com/driftsec/fuzzfleet/pkg/log"
	"github.com/driftsec/fuzzfleet/pkg/metrics"
	"github.com/driftsec/fuzzfleet/pkg/types"
)

// Fuzzer invokes the external content-discovery binary (ffuf) and parses
// its JSON output. The binary prints a single JSON document on stdout when
// run with "-o - -of json".
type Fuzzer struct {
	path string
}

// NewFuzzer returns a wrapper around the fuzzer binary at path
// ("ffuf" resolves via PATH).
func NewFuzzer(path string) *Fuzzer {
	if path == "" {
		path = "ffuf"
	}
	return &Fuzzer{path: path}
}

// Available reports whether the fuzzer binary can be resolved
func (f *Fuzzer) Available() bool {
	_, err := exec.LookPath(f.path)
	return err == nil
}

// buildArgs assembles the fuzzer command line for one task
func (f *Fuzzer) buildArgs(target, wordlistPath string, opts *types.ScanOptions) []string {
	args := []string{
		"-u", target,
		"-w", wordlistPath,
		"-o", "-",
		"-of", "json",
		"-t", strconv.Itoa(opts.EffectiveThreads()),
	}

	if opts == nil {
		return args
	}
	if opts.Method != "" {
		args = append(args, "-X", opts.Method)
	}
	for _, header := range opts.Headers {
		args = append(args, "-H", header)
	}
	if opts.Data != "" {
		args = append(args, "-d", opts.Data)
	}
	if opts.Cookies != "" {
		args = append(args, "-b", opts.Cookies)
	}
	if opts.Rate > 0 {
		args = append(args, "-rate", strconv.Itoa(opts.Rate))
	}
	if opts.Recursive {
		args = append(args, "-recursion")
	}
	if opts.FollowRedirects {
		args = append(args, "-r")
	}
	return args
}

// Run executes the fuzzer against a target, bounded by the option-supplied
// wall-clock timeout (default 7200 s). A timeout yields ErrFuzzerTimeout, a
// non-zero exit ErrFuzzerFailure, and unparseable output ErrFuzzerFailure
// as well: the worker reports all three as a failed result.
func (f *Fuzzer) Run(ctx context.Context, target, wordlistPath string, opts *types.ScanOptions) (*types.FuzzerOutput, error) {
	args := f.buildArgs(target, wordlistPath, opts)
	logger := log.WithComponent("fuzzer")
	logger.Info().Str("target", target).Strs("args", args).Msg("invoking fuzzer")

	runCtx, cancel := context.WithTimeout(ctx, opts.EffectiveTimeout())
	defer cancel()

	cmd := exec.CommandContext(runCtx, f.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	metrics.FuzzerRunDuration.Observe(time.Since(start).Seconds())

	if runCtx.Err() == context.DeadlineExceeded {
		metrics.FuzzerRunsTotal.WithLabelValues("timeout").Inc()
		return nil, errdefs.Wrap(errdefs.ErrFuzzerTimeout, "fuzzer exceeded %s", opts.EffectiveTimeout())
	}
	if err != nil {
		metrics.FuzzerRunsTotal.WithLabelValues("failed").Inc()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, errdefs.Wrap(errdefs.ErrFuzzerFailure, "fuzzer exited %d: %s",
				exitErr.ExitCode(), truncate(stderr.String(), 512))
		}
		return nil, errdefs.Wrap(errdefs.ErrFuzzerFailure, "fuzzer start failed: %v", err)
	}

	output, err := parseOutput(stdout.Bytes())
	if err != nil {
		metrics.FuzzerRunsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	metrics.FuzzerRunsTotal.WithLabelValues("completed").Inc()
	logger.Info().Int("results", len(output.Results)).Msg("fuzzer finished")
	return output, nil
}

// parseOutput decodes the fuzzer's JSON document
func parseOutput(raw []byte) (*types.FuzzerOutput, error) {
	var output types.FuzzerOutput
	if err := json.Unmarshal(raw, &output); err != nil {
		return nil, errdefs.Wrap(errdefs.ErrFuzzerFailure, "invalid fuzzer JSON output: %v", err)
	}
	return &output, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
