package mathexpr

import (
	"math"
	"testing"
)

func TestEval(t *testing.T) {
	cases := []struct {
		expr string
		want float64
	}{
		{"2+3", 5},
		{"2+3*4", 14},
		{"(2+3)*4", 20},
		{"10/4", 2.5},
		{"2^10", 1024},
		{"2^3^2", 512}, // right-associative
		{"-3+5", 2},
		{"-(2+3)", -5},
		{"--4", 4},
		{"2*-3", -6},
		{"sqrt(16)", 4},
		{"abs(-7)", 7},
		{"log(1000)", 3},
		{"ln(1)", 0},
		{"sqrt(3^2 + 4^2)", 5},
		{"  1 +  2 ", 3},
		{"3.5*2", 7},
		{"cos(0)", 1},
	}

	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := Eval(tc.expr)
			if err != nil {
				t.Fatalf("Eval(%q): %v", tc.expr, err)
			}
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("Eval(%q) = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

func TestEvalErrors(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"2+",
		"(2+3",
		"2+3)",
		"1/0",
		"foo(3)",
		"sqrt 4",
		"2..3",
		"1;2",
		"eval(1)",
		"1 2",
	}

	for _, expr := range cases {
		if _, err := Eval(expr); err == nil {
			t.Errorf("Eval(%q) succeeded, want error", expr)
		}
	}
}
