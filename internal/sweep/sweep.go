package sweep

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vk/sweeptrack/internal/config"
)

// ErrMultiValue is returned when a value list is given outside multirun mode.
var ErrMultiValue = errors.New("multi-valued override requires multirun mode (-m)")

// Param is one override argument with every value it sweeps over.
type Param struct {
	Op     config.Op
	Key    string
	Values []string
}

// IsSweep reports whether the parameter has more than one value.
func (p Param) IsSweep() bool {
	return len(p.Values) > 1
}

// Parse interprets override arguments. Values are split on top-level commas;
// commas inside brackets, braces, parentheses or quotes are kept.
func Parse(args []string) ([]Param, error) {
	params := make([]Param, 0, len(args))
	seen := make(map[string]struct{}, len(args))
	for _, arg := range args {
		op, key, raw, err := config.SplitOverride(arg)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("override for '%s' given more than once", key)
		}
		seen[key] = struct{}{}

		p := Param{Op: op, Key: key}
		if op == config.OpDelete {
			params = append(params, p)
			continue
		}
		if p.Values, err = parseValues(raw); err != nil {
			return nil, fmt.Errorf("invalid override %q: %w", arg, err)
		}
		params = append(params, p)
	}
	return params, nil
}

// Single returns the overrides of a non-sweep invocation.
func Single(params []Param) ([]config.Override, error) {
	out := make([]config.Override, 0, len(params))
	for _, p := range params {
		if p.IsSweep() {
			return nil, fmt.Errorf("'%s' has %d values: %w", p.Key, len(p.Values), ErrMultiValue)
		}
		out = append(out, override(p, 0))
	}
	return out, nil
}

// Expand returns one job per combination of values. The first parameter
// varies slowest and the last one fastest.
func Expand(params []Param) [][]config.Override {
	total := 1
	for _, p := range params {
		if n := valueCount(p); n > 0 {
			total *= n
		}
	}

	jobs := make([][]config.Override, 0, total)
	idx := make([]int, len(params))
	for range total {
		job := make([]config.Override, len(params))
		for i, p := range params {
			job[i] = override(p, idx[i])
		}
		jobs = append(jobs, job)

		for i := len(params) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < valueCount(params[i]) {
				break
			}
			idx[i] = 0
		}
	}
	return jobs
}

func valueCount(p Param) int {
	if p.Op == config.OpDelete {
		return 1
	}
	return len(p.Values)
}

func override(p Param, i int) config.Override {
	o := config.Override{Key: p.Key, Op: p.Op}
	if p.Op != config.OpDelete {
		o.Value = p.Values[i]
	}
	return o
}

func parseValues(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if inner, ok := call(trimmed, "range"); ok {
		return expandRange(inner)
	}
	if inner, ok := call(trimmed, "choice"); ok {
		if strings.TrimSpace(inner) == "" {
			return nil, errors.New("choice() needs at least one value")
		}
		return splitTopLevel(inner), nil
	}
	return splitTopLevel(raw), nil
}

// call matches name(...) and returns the argument text.
func call(s, name string) (string, bool) {
	if !strings.HasPrefix(s, name+"(") || !strings.HasSuffix(s, ")") {
		return "", false
	}
	return s[len(name)+1 : len(s)-1], true
}

// splitTopLevel splits on commas that are not nested or quoted. A value
// without commas comes back as a single element, even when empty.
func splitTopLevel(s string) []string {
	var (
		parts []string
		depth int
		quote rune
		start int
	)
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
		case r == '[' || r == '{' || r == '(':
			depth++
		case r == ']' || r == '}' || r == ')':
			if depth > 0 {
				depth--
			}
		case r == ',' && depth == 0:
			parts = append(parts, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	if len(parts) == 0 {
		return []string{s}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

// expandRange implements range(stop), range(start, stop) and
// range(start, stop, step) with an exclusive stop. Integer bounds produce
// integers, anything else produces floats.
func expandRange(inner string) ([]string, error) {
	args := splitTopLevel(inner)
	if len(args) > 3 || (len(args) == 1 && args[0] == "") {
		return nil, fmt.Errorf("range() takes 1 to 3 arguments, got %d", len(args))
	}

	nums := make([]float64, len(args))
	integral := true
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("range() argument %q is not a number", a)
		}
		nums[i] = f
		if _, err := strconv.ParseInt(a, 10, 64); err != nil {
			integral = false
		}
	}

	start, stop, step := 0.0, 0.0, 1.0
	switch len(nums) {
	case 1:
		stop = nums[0]
	case 2:
		start, stop = nums[0], nums[1]
	case 3:
		start, stop, step = nums[0], nums[1], nums[2]
	}
	if step == 0 {
		return nil, errors.New("range() step must not be zero")
	}

	n := int(math.Ceil((stop - start) / step))
	if n <= 0 {
		return nil, fmt.Errorf("range(%s) is empty", inner)
	}
	values := make([]string, 0, n)
	for i := range n {
		v := start + float64(i)*step
		if integral {
			values = append(values, strconv.FormatInt(int64(v), 10))
		} else {
			values = append(values, strconv.FormatFloat(v, 'g', -1, 64))
		}
	}
	return values, nil
}
