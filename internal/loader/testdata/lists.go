package lists

import "github.com/olgasafonova/tooldock-mcp-server/toolkit"

// Add returns the sum of a and b.
func Add(a, b int) int { return a + b }

// Mul returns the product of a and b.
func Mul(a, b int) int { return a * b }

// Sub returns a minus b.
func Sub(a, b int) int { return a - b }

var Tools = []any{Add, 42}

var ToolSpecs = []toolkit.Spec{
	{Func: Mul, Name: "times", Tags: []string{"math"}},
}

func Register(r toolkit.Registrar) error {
	return r.Add(toolkit.Spec{Func: Sub, Name: "minus", ParamNames: []string{"a", "b"}})
}
