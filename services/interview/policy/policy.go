// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package policy classifies ingested anti-cheat events into strikes and
// applies escalation thresholds that can auto-pause or auto-seal a session.
// The default rules are embedded at compile time; the engine itself holds no
// mutable state and is safe for concurrent use.
package policy

import (
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
)

// DefaultThresholds holds the raw bytes of thresholds.yaml, baked into the
// binary so the enforcement rules cannot be tampered with on the host
// filesystem without recompiling.
//
//go:embed thresholds.yaml
var DefaultThresholds []byte

// redCounterKey tracks red FACE_MISSING strikes inside session.policyCounters
// so seal evaluation never needs a strike-table scan.
const redCounterKey = datatypes.EventFaceMissing + ":red"

// thresholdsFile mirrors the YAML layout.
type thresholdsFile struct {
	Classification struct {
		FaceMissingRedSeconds float64 `yaml:"face_missing_red_seconds"`
	} `yaml:"classification"`
	Thresholds struct {
		ScreenshotSeal     int `yaml:"screenshot_seal"`
		FSExitPause        int `yaml:"fs_exit_pause"`
		FSExitSeal         int `yaml:"fs_exit_seal"`
		FaceMissingRedSeal int `yaml:"face_missing_red_seal"`
		TabSwitchWarn      int `yaml:"tab_switch_warn"`
	} `yaml:"thresholds"`
	EndCodes struct {
		Screenshot  string `yaml:"screenshot"`
		FSExit      string `yaml:"fs_exit"`
		FaceMissing string `yaml:"face_missing"`
	} `yaml:"end_codes"`
	PauseReasons struct {
		FSExit string `yaml:"fs_exit"`
	} `yaml:"pause_reasons"`
}

// Engine evaluates events against the loaded thresholds.
type Engine struct {
	rules thresholdsFile
}

// NewEngine loads the embedded default thresholds.
func NewEngine() (*Engine, error) {
	var rules thresholdsFile
	if err := yaml.Unmarshal(DefaultThresholds, &rules); err != nil {
		return nil, fmt.Errorf("unmarshal embedded thresholds: %w", err)
	}
	return &Engine{rules: rules}, nil
}

// Decision is the escalation outcome for one ingested batch. Seal wins over
// Pause when both trigger.
type Decision struct {
	Pause       bool
	PauseReason string
	Seal        bool
	EndCode     string
}

// Outcome bundles everything the ingest path must persist after a batch:
// the strikes to insert, the counter increments to apply to the session,
// and the escalation decision based on the post-increment counters.
type Outcome struct {
	Strikes  []datatypes.Strike
	Deltas   map[string]int
	Decision Decision
}

// Severity classifies a single event, or returns ok=false for event types
// the policy ignores. A missing or non-numeric FACE_MISSING duration reads
// as 0 and stays yellow.
func (e *Engine) Severity(ev datatypes.AntiCheatEvent) (string, bool) {
	switch ev.Type {
	case datatypes.EventScreenshotAttempt:
		return datatypes.SeverityRed, true
	case datatypes.EventFSExit, datatypes.EventTabSwitch:
		return datatypes.SeverityYellow, true
	case datatypes.EventFaceMissing:
		if durationSeconds(ev.Details) > e.rules.Classification.FaceMissingRedSeconds {
			return datatypes.SeverityRed, true
		}
		return datatypes.SeverityYellow, true
	default:
		return "", false
	}
}

// durationSeconds pulls a numeric "duration" out of client-supplied details.
func durationSeconds(details map[string]any) float64 {
	if details == nil {
		return 0
	}
	switch v := details["duration"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Evaluate classifies an accepted batch against the session's pre-batch
// counters and state. counters must be the session's policyCounters as of
// the ingest; Evaluate never mutates it.
//
// The TAB_SWITCH escalation fires exactly once, on the batch that pushes the
// count past the warn threshold, and produces a red strike but no state
// change.
func (e *Engine) Evaluate(events []datatypes.AntiCheatEvent, counters map[string]int, state datatypes.State, now time.Time) Outcome {
	out := Outcome{Deltas: make(map[string]int)}

	running := make(map[string]int, len(counters)+4)
	for k, v := range counters {
		running[k] = v
	}

	for _, ev := range events {
		severity, ok := e.Severity(ev)
		if !ok {
			continue
		}
		out.Strikes = append(out.Strikes, datatypes.Strike{
			ID:        uuid.New().String(),
			SessionID: ev.SessionID,
			Type:      ev.Type,
			Severity:  severity,
			TS:        ev.TS,
			Details:   ev.Details,
			CreatedAt: now,
		})
		out.Deltas[ev.Type]++
		running[ev.Type]++
		if ev.Type == datatypes.EventFaceMissing && severity == datatypes.SeverityRed {
			out.Deltas[redCounterKey]++
			running[redCounterKey]++
		}

		if ev.Type == datatypes.EventTabSwitch &&
			running[datatypes.EventTabSwitch] == e.rules.Thresholds.TabSwitchWarn+1 {
			out.Strikes = append(out.Strikes, datatypes.Strike{
				ID:        uuid.New().String(),
				SessionID: ev.SessionID,
				Type:      ev.Type,
				Severity:  datatypes.SeverityRed,
				TS:        ev.TS,
				Details:   map[string]any{"escalated": true, "count": running[datatypes.EventTabSwitch]},
				CreatedAt: now,
			})
		}
	}

	out.Decision = e.decide(running, state)
	return out
}

// decide applies the seal/pause thresholds to post-batch counters. Seal
// reasons are checked in a fixed order so concurrent triggers resolve
// deterministically.
func (e *Engine) decide(counters map[string]int, state datatypes.State) Decision {
	var d Decision
	switch {
	case counters[datatypes.EventScreenshotAttempt] >= e.rules.Thresholds.ScreenshotSeal:
		d.Seal = true
		d.EndCode = e.rules.EndCodes.Screenshot
	case counters[datatypes.EventFSExit] >= e.rules.Thresholds.FSExitSeal:
		d.Seal = true
		d.EndCode = e.rules.EndCodes.FSExit
	case counters[redCounterKey] >= e.rules.Thresholds.FaceMissingRedSeal:
		d.Seal = true
		d.EndCode = e.rules.EndCodes.FaceMissing
	}
	if d.Seal {
		return d
	}
	if counters[datatypes.EventFSExit] >= e.rules.Thresholds.FSExitPause && state == datatypes.StateActive {
		d.Pause = true
		d.PauseReason = e.rules.PauseReasons.FSExit
	}
	return d
}
