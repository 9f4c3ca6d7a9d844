// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sandbox evaluates candidate-submitted Python against a test list.
// Every test case runs in its own short-lived python3 subprocess with a
// restricted builtins allowlist, so test cases share no process memory and a
// runaway test is killed at the wall-clock limit without affecting the rest.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ErrDisallowedCode is surfaced verbatim as the 400 error code when the
// pre-screen rejects a submission.
var ErrDisallowedCode = errors.New("disallowed_code")

// bannedTokens is the case-insensitive substring pre-screen. Coarse on
// purpose: anything that even looks like I/O, process, or import machinery
// is rejected before a subprocess is spawned.
var bannedTokens = []string{
	"import ", "__import__", "open(", "exec(", "eval(",
	"os.", "sys.", "subprocess", "socket", "thread", "fork", "spawn",
}

// harness is the per-test driver executed by python3. It reads one JSON
// payload from stdin, execs the submitted code under a builtins allowlist,
// resolves the target function, runs the single test, and prints one JSON
// result line. Unserializable return values degrade to repr().
const harness = `
import json, sys
payload = json.load(sys.stdin)
code = payload["code"]
fname = payload["functionName"]
inp = payload["input"]
expected = payload["expected"]
allowed = {
    "len": len, "range": range, "list": list, "dict": dict, "set": set,
    "sum": sum, "min": min, "max": max, "sorted": sorted,
    "enumerate": enumerate, "abs": abs, "all": all, "any": any,
}
globals_dict = {"__builtins__": allowed}
locals_dict = {}
try:
    exec(code, globals_dict, locals_dict)
except Exception as e:
    print(json.dumps({"error": str(e)}))
    sys.exit(0)
func = locals_dict.get(fname) or globals_dict.get(fname)
if not callable(func):
    print(json.dumps({"error": "function_not_found"}))
    sys.exit(0)
try:
    actual = func(*inp) if isinstance(inp, list) else func(inp)
    ok = actual == expected
    try:
        out = json.dumps({"actual": actual, "pass": ok})
    except Exception:
        out = json.dumps({"actual": repr(actual), "pass": ok})
    print(out)
except Exception as e:
    print(json.dumps({"error": str(e)}))
`

// Test is one test case: Input is passed positionally when it is a list,
// otherwise as a single argument.
type Test struct {
	Input    any `json:"input"`
	Expected any `json:"expected"`
}

// Result is the outcome for one test case.
type Result struct {
	Input    any    `json:"input"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual,omitempty"`
	Pass     bool   `json:"pass"`
	Error    string `json:"error,omitempty"`
}

// Report aggregates a full evaluation.
type Report struct {
	Results []Result `json:"results"`
	Passed  int      `json:"passed"`
	Total   int      `json:"total"`
}

// Screen rejects code containing any banned token, case-insensitively.
func Screen(code string) error {
	lowered := strings.ToLower(code)
	for _, token := range bannedTokens {
		if strings.Contains(lowered, token) {
			return fmt.Errorf("%w: contains %q", ErrDisallowedCode, token)
		}
	}
	return nil
}

// Evaluator runs submitted code under the harness.
//
// Thread Safety: safe for concurrent use; every test spawns its own process.
type Evaluator struct {
	python      string
	testTimeout time.Duration
	logger      *slog.Logger
}

// NewEvaluator builds an evaluator using python3 from PATH and the 1 second
// per-test wall clock.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{python: "python3", testTimeout: time.Second, logger: logger}
}

type harnessPayload struct {
	Code         string `json:"code"`
	FunctionName string `json:"functionName"`
	Input        any    `json:"input"`
	Expected     any    `json:"expected"`
}

type harnessResult struct {
	Actual any    `json:"actual"`
	Pass   bool   `json:"pass"`
	Error  string `json:"error"`
}

// Evaluate screens the code, then runs each test in its own subprocess. An
// empty functionName defaults to "solution". The returned error is non-nil
// only for the pre-screen; per-test failures are recorded in the report.
func (e *Evaluator) Evaluate(ctx context.Context, code, functionName string, tests []Test) (Report, error) {
	if err := Screen(code); err != nil {
		return Report{}, err
	}
	if functionName == "" {
		functionName = "solution"
	}

	report := Report{Results: make([]Result, 0, len(tests)), Total: len(tests)}
	for _, tc := range tests {
		res := e.runOne(ctx, code, functionName, tc)
		if res.Pass {
			report.Passed++
		}
		report.Results = append(report.Results, res)
	}
	e.logger.Debug("code evaluation finished",
		slog.Int("passed", report.Passed), slog.Int("total", report.Total))
	return report, nil
}

func (e *Evaluator) runOne(ctx context.Context, code, functionName string, tc Test) Result {
	res := Result{Input: tc.Input, Expected: tc.Expected}

	payload, err := json.Marshal(harnessPayload{
		Code: code, FunctionName: functionName, Input: tc.Input, Expected: tc.Expected,
	})
	if err != nil {
		res.Error = fmt.Sprintf("marshal test payload: %v", err)
		return res
	}

	runCtx, cancel := context.WithTimeout(ctx, e.testTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.python, "-c", harness)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		res.Error = "timeout"
		return res
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			res.Error = fmt.Sprintf("spawn worker: %v", err)
			return res
		}
		e.logger.Warn("code worker exited nonzero",
			slog.Int("exit_code", exitErr.ExitCode()),
			slog.String("stderr", strings.TrimSpace(stderr.String())))
	}

	line := strings.TrimSpace(stdout.String())
	if line == "" {
		res.Error = "no_result"
		return res
	}
	// The harness prints exactly one line; anything before it would be
	// user print output, which the allowlist already excludes.
	var parsed harnessResult
	if err := json.Unmarshal([]byte(line), &parsed); err != nil {
		res.Error = "no_result"
		return res
	}
	if parsed.Error != "" {
		res.Error = parsed.Error
		return res
	}
	res.Actual = parsed.Actual
	res.Pass = parsed.Pass
	return res
}
