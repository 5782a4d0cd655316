//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package react

import (
	"context"
	"regexp"
	"strings"
)

// Offline is the runtime used when no model provider is configured. It is
// deterministic: with a calculator tool attached and an arithmetic
// expression in the prompt it computes the answer through the tool,
// otherwise it reports step exhaustion. This keeps agent workflows
// runnable in tests and keyless deployments.
type Offline struct{}

var _ Runtime = (*Offline)(nil)

// Run executes the scripted offline behavior.
func (Offline) Run(ctx context.Context, req *Request) (*Result, error) {
	calc, ok := calculatorTool(req.Tools)
	if !ok || req.Invoke == nil {
		return &Result{Final: ExhaustedAnswer}, nil
	}
	expr := extractExpression(req.Prompt)
	if expr == "" {
		return &Result{Final: ExhaustedAnswer}, nil
	}
	req.log("agent.react: invoking tool", map[string]any{"tool": calc.Name})
	out, err := req.Invoke(ctx, calc, map[string]any{"expression": expr})
	if err != nil {
		return nil, err
	}
	return &Result{
		Final: stringifyValue(out["result"]),
		Trace: []map[string]any{{"step": 1, "action": calc.Name}},
	}, nil
}

// exprCandidate matches maximal runs of arithmetic-expression characters.
var exprCandidate = regexp.MustCompile(`[0-9+\-*/%().\s]+`)

// extractExpression pulls the longest arithmetic expression out of a
// prompt, e.g. "compute (12+7)*3" yields "(12+7)*3".
func extractExpression(prompt string) string {
	var best string
	for _, cand := range exprCandidate.FindAllString(prompt, -1) {
		cand = strings.TrimSpace(cand)
		cand = strings.TrimRight(cand, ".,:;!?")
		if !hasDigit(cand) || !hasOperator(cand) {
			continue
		}
		if len(cand) > len(best) {
			best = cand
		}
	}
	return best
}

func hasDigit(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			return true
		}
	}
	return false
}

func hasOperator(s string) bool {
	return strings.ContainsAny(s, "+-*/%")
}
