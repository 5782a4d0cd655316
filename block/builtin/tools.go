//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package builtin

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"trpc.group/trpc-go/trpc-flow-go/block"
	"trpc.group/trpc-go/trpc-flow-go/render"
)

type calculatorSettings struct {
	Expression string `json:"expression,omitempty" jsonschema:"description=Arithmetic expression, e.g. '2 + 2 * 3'; optional when invoked as a tool with runtime input"`
}

type calculatorOutput struct {
	Result float64 `json:"result"`
}

// calculatorBlock evaluates basic arithmetic. Unlike the hosted tool
// blocks it runs standalone too; without a configured expression it looks
// for one in the trigger and then in upstream outputs so agents can invoke
// it with runtime input.
func calculatorBlock() block.Block {
	return block.New("tool.calculator",
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			var s calculatorSettings
			if err := block.DecodeSettings(in.Settings, &s); err != nil {
				return nil, err
			}
			expr := strings.TrimSpace(s.Expression)
			if expr == "" {
				expr = strings.TrimSpace(runtimeExpression(in))
			}
			if expr == "" {
				return nil, block.Configf("tool.calculator requires 'expression'")
			}
			rc.Info(in.NodeID, "tool.calculator: evaluating", map[string]any{"expression": expr})
			val, err := evalArithmetic(expr)
			if err != nil {
				return nil, block.Configf("tool.calculator: %v", err)
			}
			return map[string]any{"result": val}, nil
		},
		block.WithSummary("Calculator tool: evaluate basic arithmetic expressions"),
		block.WithToolCompatible(),
		block.WithExtras(map[string]any{"toolCompatible": true}),
		block.WithSettings(calculatorSettings{}),
		block.WithOutput(calculatorOutput{}),
	)
}

// runtimeExpression finds an expression when settings carry none: common
// trigger keys first, then the first upstream output in node id order.
func runtimeExpression(in *block.Input) string {
	for _, key := range []string{"expression", "input", "prompt"} {
		if s, ok := in.Trigger[key].(string); ok && s != "" {
			return s
		}
	}
	ids := make([]string, 0, len(in.Upstream))
	for id := range in.Upstream {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out := in.Upstream[id]
		if s, ok := out["expression"].(string); ok && s != "" {
			return s
		}
		if s, ok := out["text"].(string); ok && s != "" {
			return s
		}
		return render.Stringify(out)
	}
	return ""
}

// exprParser is a recursive-descent evaluator over numeric literals and
// + - * / % ** with parentheses. Precedence and the unary/power interplay
// follow conventional math: -2**2 is -(2**2).
type exprParser struct {
	input string
	pos   int
}

func evalArithmetic(expr string) (float64, error) {
	p := &exprParser{input: expr}
	val, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected %q at position %d", p.input[p.pos], p.pos)
	}
	return val, nil
}

func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		switch {
		case p.peek() == '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case p.peek() == '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpaces()
		switch {
		case p.peek() == '*' && p.peekAt(1) != '*':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			left *= right
		case p.peek() == '/':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case p.peek() == '%':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			left = floorMod(left, right)
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseUnary() (float64, error) {
	p.skipSpaces()
	switch p.peek() {
	case '+':
		p.pos++
		return p.parseUnary()
	case '-':
		p.pos++
		val, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return -val, nil
	}
	return p.parsePower()
}

func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.peek() == '*' && p.peekAt(1) == '*' {
		p.pos += 2
		// Right-associative; the exponent may itself be signed.
		exp, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *exprParser) parsePrimary() (float64, error) {
	p.skipSpaces()
	if p.peek() == '(' {
		p.pos++
		val, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis at position %d", p.pos)
		}
		p.pos++
		return val, nil
	}
	return p.parseNumber()
}

func (p *exprParser) parseNumber() (float64, error) {
	start := p.pos
	for p.pos < len(p.input) && (isDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	if p.pos == start {
		if p.pos >= len(p.input) {
			return 0, fmt.Errorf("unexpected end of expression")
		}
		return 0, fmt.Errorf("unexpected %q at position %d", p.input[p.pos], p.pos)
	}
	// Optional exponent suffix, e.g. 1e3 or 2.5E-2.
	if p.pos < len(p.input) && (p.input[p.pos] == 'e' || p.input[p.pos] == 'E') {
		mark := p.pos
		p.pos++
		if p.pos < len(p.input) && (p.input[p.pos] == '+' || p.input[p.pos] == '-') {
			p.pos++
		}
		if p.pos < len(p.input) && isDigit(p.input[p.pos]) {
			for p.pos < len(p.input) && isDigit(p.input[p.pos]) {
				p.pos++
			}
		} else {
			p.pos = mark
		}
	}
	val, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", p.input[start:p.pos])
	}
	return val, nil
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\n' || p.input[p.pos] == '\r') {
		p.pos++
	}
}

func (p *exprParser) peek() byte {
	return p.peekAt(0)
}

func (p *exprParser) peekAt(offset int) byte {
	if p.pos+offset >= len(p.input) {
		return 0
	}
	return p.input[p.pos+offset]
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// floorMod matches the modulo convention where the result carries the
// divisor's sign: -7 % 3 is 2.
func floorMod(a, b float64) float64 {
	m := math.Mod(a, b)
	if m != 0 && (m < 0) != (b < 0) {
		m += b
	}
	return m
}

// toolShimNote explains why standalone runs of hosted tool blocks return a
// descriptor instead of executing.
const toolShimNote = "tool blocks execute inside an agent loop; standalone runs emit this descriptor only"

// toolShim builds a tool-compatible block whose standalone execution is a
// no-op descriptor. The real invocation happens when an agent dispatches
// the tool during its reasoning loop.
func toolShim(blockType, summary string, settings any) block.Block {
	return block.New(blockType,
		func(ctx context.Context, in *block.Input, rc *block.RunContext) (map[string]any, error) {
			name := blockType
			if s, ok := in.Settings["name"].(string); ok && s != "" {
				name = s
			}
			return map[string]any{
				"tool": blockType,
				"name": name,
				"note": toolShimNote,
			}, nil
		},
		block.WithSummary(summary),
		block.WithToolCompatible(),
		block.WithExtras(map[string]any{"toolCompatible": true}),
		block.WithSettings(settings),
	)
}

type namedToolSettings struct {
	Name string `json:"name,omitempty" jsonschema:"description=Optional tool name override"`
}

func httpRequestToolBlock() block.Block {
	return toolShim("tool.http_request", "HTTP request tool for agent nodes", namedToolSettings{})
}

func webSearchToolBlock() block.Block {
	return toolShim("tool.websearch", "Web search tool (provider-hosted)", namedToolSettings{})
}

type codeInterpreterToolSettings struct {
	Name     string `json:"name,omitempty" jsonschema:"description=Optional tool name override"`
	Language string `json:"language,omitempty" jsonschema:"description=Execution language,enum=python,enum=go"`
}

func codeInterpreterToolBlock() block.Block {
	return toolShim("tool.code_interpreter", "Code interpreter tool backed by the configured executor", codeInterpreterToolSettings{})
}

type composioToolSettings struct {
	Toolkit        string         `json:"toolkit" jsonschema:"description=Toolkit name, e.g. GMAIL"`
	ToolSlug       string         `json:"tool_slug" jsonschema:"description=Tool slug, e.g. GMAIL_SEND_EMAIL"`
	UseAccount     string         `json:"use_account,omitempty" jsonschema:"description=Connected account id; defaults to the most recent active binding"`
	Args           map[string]any `json:"args,omitempty" jsonschema:"description=Tool arguments; string leaves support {{ }} expressions"`
	TimeoutSeconds float64        `json:"timeout_seconds,omitempty"`
}

func composioToolBlock() block.Block {
	return toolShim("tool.composio", "Execute a Composio tool through a connected account", composioToolSettings{})
}

type mcpToolSettings struct {
	ServerURL string            `json:"server_url" jsonschema:"description=MCP server endpoint"`
	Tool      string            `json:"tool,omitempty" jsonschema:"description=Restrict to one tool; empty exposes all"`
	Headers   map[string]string `json:"headers,omitempty"`
}

func mcpToolBlock() block.Block {
	return toolShim("tool.mcp", "Proxy tools from an MCP server into the agent loop", mcpToolSettings{})
}
