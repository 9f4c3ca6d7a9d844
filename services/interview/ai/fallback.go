// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ai

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
)

// FallbackQuestion returns the deterministic question for the session's
// first configured mode. The coding fallback carries a tests array shaped
// for the sandbox evaluator.
func FallbackQuestion(cfg datatypes.SessionConfig, remaining int, difficulty string) GeneratedQuestion {
	mode := "behavioral"
	if len(cfg.Modes) > 0 && cfg.Modes[0] != "" {
		mode = strings.ToLower(cfg.Modes[0])
	}
	role := cfg.RoleCategory
	if role == "" {
		role = "Candidate"
	}
	qnum := cfg.QuestionCount - remaining + 1

	switch mode {
	case "coding", "code":
		return GeneratedQuestion{
			Type: datatypes.QuestionCoding,
			Text: "Write a function to find all duplicates in an array of integers.",
			Metadata: map[string]any{
				"difficulty":        difficulty,
				"hintAvailable":     true,
				"language":          "python",
				"functionName":      "find_duplicates",
				"functionSignature": "def find_duplicates(arr):\n    # your code\n    pass",
				"tests": []any{
					map[string]any{"input": []any{[]any{1, 2, 3, 2, 4, 1}}, "expected": []any{1, 2}},
					map[string]any{"input": []any{[]any{5, 5, 5}}, "expected": []any{5}},
					map[string]any{"input": []any{[]any{1, 2, 3}}, "expected": []any{}},
				},
			},
		}
	case "mcq":
		return GeneratedQuestion{
			Type: datatypes.QuestionMCQ,
			Text: "Which of the following statements about Big-O notation are true?",
			Metadata: map[string]any{
				"difficulty":    difficulty,
				"hintAvailable": true,
				"options": []any{
					"O(n log n) grows slower than O(n^2)",
					"O(1) means constant time regardless of input size",
					"O(n) always faster than O(log n)",
					"O(2^n) is polynomial time",
				},
				"multiple": true,
			},
		}
	case "fib", "fill":
		return GeneratedQuestion{
			Type: datatypes.QuestionFIB,
			Text: "Fill in the blanks for the HTTP status codes: ______ means Not Found, ______ means OK.",
			Metadata: map[string]any{
				"difficulty":    difficulty,
				"hintAvailable": true,
				"fillSlots":     []any{"Not Found", "OK"},
			},
		}
	case "scenario":
		return GeneratedQuestion{
			Type:     datatypes.QuestionScenario,
			Text:     fmt.Sprintf("Your automated test suite is slow. Propose a plan to optimize it for the %s role.", role),
			Metadata: map[string]any{"difficulty": difficulty, "hintAvailable": true},
		}
	default:
		return GeneratedQuestion{
			Type:     datatypes.QuestionBehavioral,
			Text:     fmt.Sprintf("Tell me about a time you solved a difficult problem in %s. (Q%d)", role, qnum),
			Metadata: map[string]any{"difficulty": difficulty, "hintAvailable": true},
		}
	}
}

// FallbackAnalysis scores an answer with a length heuristic: 40 when empty,
// otherwise 60 plus one point per ten words capped at 100. Feedback and
// model-answer texts depend on the answer type.
func FallbackAnalysis(a *datatypes.Answer) datatypes.Feedback {
	text := ""
	answerType := datatypes.AnswerText
	if a != nil {
		text = a.ResponseText
		if a.AnswerType != "" {
			answerType = a.AnswerType
		}
	}

	score := 40
	if text != "" {
		bonus := len(strings.Fields(text)) / 10
		if bonus > 40 {
			bonus = 40
		}
		score = 60 + bonus
	}

	var feedback, model string
	switch answerType {
	case datatypes.AnswerCode:
		feedback = "Consider correctness, complexity, edge cases, and readability. Add tests where relevant."
		model = "Provide a correct, efficient solution with O(n) or better if applicable; discuss tradeoffs and edge cases."
	case datatypes.AnswerMCQ:
		feedback = "Review the selected choices and justify why they are correct; revisit the concept if unsure."
		model = "State the correct option(s) with a brief explanation."
	case datatypes.AnswerFIB:
		feedback = "Fill each blank with precise terminology; ensure consistency with the question context."
		model = "Provide the expected term/value per blank with a short rationale."
	default:
		feedback = "Good start. Add concrete details, metrics, and structure (STAR)."
		model = "Include Situation, Task, Action, Result with metrics; for coding, discuss complexity and edge cases."
	}
	return datatypes.Feedback{Score: score, Feedback: feedback, ModelAnswer: model}
}

// FallbackSummary is the fixed degraded-mode summary.
func FallbackSummary() datatypes.SummaryBody {
	return datatypes.SummaryBody{
		Rubric:         map[string]int{"communication": 3, "problem_solving": 3, "technical": 3},
		Strengths:      []string{"Clear structure", "Relevant examples"},
		Gaps:           []string{"More depth on metrics"},
		ScoreBreakdown: map[string]any{"overall": 75},
	}
}
