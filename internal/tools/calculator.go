package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

// calculatorTool evaluates arithmetic expressions locally. No expression
// text ever reaches an interpreter; the evaluator accepts numbers, the
// operators + - * / % ^, parentheses, and a fixed function table.
type calculatorTool struct{}

func newCalculatorTool() *calculatorTool { return &calculatorTool{} }

func (t *calculatorTool) ID() string { return ToolCalculator }

func (t *calculatorTool) Search(ctx context.Context, query string) ([]research.Source, error) {
	value, err := evaluate(query)
	if err != nil {
		return nil, err
	}
	result := strconv.FormatFloat(value, 'g', -1, 64)
	return []research.Source{{
		Title:   "Calculation",
		Snippet: fmt.Sprintf("%s = %s", strings.TrimSpace(query), result),
	}}, nil
}

var calcConstants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

var calcUnary = map[string]func(float64) float64{
	"sqrt":  math.Sqrt,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"log":   math.Log,
	"log10": math.Log10,
	"log2":  math.Log2,
	"exp":   math.Exp,
	"floor": math.Floor,
	"ceil":  math.Ceil,
	"abs":   math.Abs,
	"round": math.Round,
}

var calcBinary = map[string]func(float64, float64) float64{
	"pow": math.Pow,
	"min": math.Min,
	"max": math.Max,
}

type calcToken struct {
	kind  byte // 'n' number, 'o' operator, 'f' function, '(' ')' ','
	text  string
	value float64
}

func tokenize(expr string) ([]calcToken, error) {
	var out []calcToken
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(expr) && (expr[j] >= '0' && expr[j] <= '9' || expr[j] == '.') {
				j++
			}
			v, err := strconv.ParseFloat(expr[i:j], 64)
			if err != nil {
				return nil, fmt.Errorf("bad number %q", expr[i:j])
			}
			out = append(out, calcToken{kind: 'n', value: v})
			i = j
		case unicode.IsLetter(rune(c)):
			j := i
			for j < len(expr) && (unicode.IsLetter(rune(expr[j])) || unicode.IsDigit(rune(expr[j]))) {
				j++
			}
			name := strings.ToLower(expr[i:j])
			if v, ok := calcConstants[name]; ok {
				out = append(out, calcToken{kind: 'n', value: v})
			} else if _, ok := calcUnary[name]; ok {
				out = append(out, calcToken{kind: 'f', text: name})
			} else if _, ok := calcBinary[name]; ok {
				out = append(out, calcToken{kind: 'f', text: name})
			} else {
				return nil, fmt.Errorf("unknown identifier %q", name)
			}
			i = j
		case strings.ContainsRune("+-*/%^", rune(c)):
			out = append(out, calcToken{kind: 'o', text: string(c)})
			i++
		case c == '(' || c == ')' || c == ',':
			out = append(out, calcToken{kind: c})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q", string(c))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	return out, nil
}

func precedence(op string) int {
	switch op {
	case "u-":
		return 4
	case "^":
		return 3
	case "*", "/", "%":
		return 2
	default:
		return 1
	}
}

func rightAssoc(op string) bool { return op == "^" || op == "u-" }

// evaluate parses and computes the expression via the shunting-yard
// algorithm, folding to a value in a single pass over the output queue.
func evaluate(expr string) (float64, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return 0, err
	}

	var output []calcToken
	var ops []calcToken
	prevKind := byte(0)
	for _, tok := range tokens {
		switch tok.kind {
		case 'n':
			output = append(output, tok)
		case 'f':
			ops = append(ops, tok)
		case 'o':
			op := tok.text
			if op == "-" && (prevKind == 0 || prevKind == 'o' || prevKind == '(' || prevKind == ',') {
				op = "u-"
			}
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				if top.kind != 'o' {
					break
				}
				if precedence(top.text) > precedence(op) || (precedence(top.text) == precedence(op) && !rightAssoc(op)) {
					output = append(output, top)
					ops = ops[:len(ops)-1]
					continue
				}
				break
			}
			ops = append(ops, calcToken{kind: 'o', text: op})
		case '(':
			ops = append(ops, tok)
		case ',':
			for len(ops) > 0 && ops[len(ops)-1].kind != '(' {
				output = append(output, ops[len(ops)-1])
				ops = ops[:len(ops)-1]
			}
			if len(ops) == 0 {
				return 0, fmt.Errorf("misplaced comma")
			}
		case ')':
			for len(ops) > 0 && ops[len(ops)-1].kind != '(' {
				output = append(output, ops[len(ops)-1])
				ops = ops[:len(ops)-1]
			}
			if len(ops) == 0 {
				return 0, fmt.Errorf("unbalanced parentheses")
			}
			ops = ops[:len(ops)-1]
			if len(ops) > 0 && ops[len(ops)-1].kind == 'f' {
				output = append(output, ops[len(ops)-1])
				ops = ops[:len(ops)-1]
			}
		}
		prevKind = tok.kind
		if tok.kind == 'o' {
			prevKind = 'o'
		}
	}
	for len(ops) > 0 {
		top := ops[len(ops)-1]
		if top.kind == '(' {
			return 0, fmt.Errorf("unbalanced parentheses")
		}
		output = append(output, top)
		ops = ops[:len(ops)-1]
	}

	var stack []float64
	pop := func() (float64, bool) {
		if len(stack) == 0 {
			return 0, false
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, true
	}
	for _, tok := range output {
		switch tok.kind {
		case 'n':
			stack = append(stack, tok.value)
		case 'o':
			if tok.text == "u-" {
				v, ok := pop()
				if !ok {
					return 0, fmt.Errorf("malformed expression")
				}
				stack = append(stack, -v)
				continue
			}
			b, okB := pop()
			a, okA := pop()
			if !okA || !okB {
				return 0, fmt.Errorf("malformed expression")
			}
			switch tok.text {
			case "+":
				stack = append(stack, a+b)
			case "-":
				stack = append(stack, a-b)
			case "*":
				stack = append(stack, a*b)
			case "/":
				if b == 0 {
					return 0, fmt.Errorf("division by zero")
				}
				stack = append(stack, a/b)
			case "%":
				if b == 0 {
					return 0, fmt.Errorf("division by zero")
				}
				stack = append(stack, math.Mod(a, b))
			case "^":
				stack = append(stack, math.Pow(a, b))
			}
		case 'f':
			if fn, ok := calcUnary[tok.text]; ok {
				v, okV := pop()
				if !okV {
					return 0, fmt.Errorf("%s expects one argument", tok.text)
				}
				stack = append(stack, fn(v))
			} else {
				b, okB := pop()
				a, okA := pop()
				if !okA || !okB {
					return 0, fmt.Errorf("%s expects two arguments", tok.text)
				}
				stack = append(stack, calcBinary[tok.text](a, b))
			}
		}
	}
	if len(stack) != 1 {
		return 0, fmt.Errorf("malformed expression")
	}
	result := stack[0]
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return 0, fmt.Errorf("result is not a finite number")
	}
	return result, nil
}
