package model_selection

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mlops-project/trainer/pkg/errors"
)

// ParamGrid maps a hyperparameter name to the values to try.
type ParamGrid map[string][]interface{}

// Size returns the number of combinations in the grid. An empty grid has a
// single (default) combination.
func (g ParamGrid) Size() int {
	n := 1
	for _, vals := range g {
		n *= len(vals)
	}
	return n
}

// ParameterGrid enumerates every combination of g. Keys are visited in
// sorted order and the last key varies fastest, so the enumeration order is
// stable across runs. An empty grid yields one empty combination.
func ParameterGrid(g ParamGrid) ([]map[string]interface{}, error) {
	keys := make([]string, 0, len(g))
	for k, vals := range g {
		if len(vals) == 0 {
			return nil, errors.NewValidationError(k, "parameter grid value list must be non-empty", vals)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := []map[string]interface{}{{}}
	for _, k := range keys {
		next := make([]map[string]interface{}, 0, len(out)*len(g[k]))
		for _, base := range out {
			for _, v := range g[k] {
				c := make(map[string]interface{}, len(base)+1)
				for bk, bv := range base {
					c[bk] = bv
				}
				c[k] = v
				next = append(next, c)
			}
		}
		out = next
	}
	return out, nil
}

// FormatParams renders a parameter combination as "a=1, b=x" with sorted
// keys.
func FormatParams(params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
