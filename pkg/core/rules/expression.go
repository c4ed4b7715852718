package rules

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/shift-roster/pkg/core/model"
)

// Metrics available to expression rules
const (
	MetricShifts          = "shifts"
	MetricNightShifts     = "night_shifts"
	MetricHours           = "hours"
	MetricConsecutiveDays = "consecutive_days"
	MetricWeekendShifts   = "weekend_shifts"
)

var comparisonOperators = []string{"<=", ">=", "==", "!=", "<", ">"}

// comparison is a parsed "<metric> <op> <number>" expression
type comparison struct {
	metric string
	op     string
	value  float64
}

// parseComparison parses an expression such as "night_shifts > 3".
// Returns false for anything it does not understand.
func parseComparison(expr string) (comparison, bool) {
	expr = strings.TrimSpace(expr)
	for _, op := range comparisonOperators {
		idx := strings.Index(expr, op)
		if idx <= 0 {
			continue
		}
		metric := strings.TrimSpace(expr[:idx])
		value, err := strconv.ParseFloat(strings.TrimSpace(expr[idx+len(op):]), 64)
		if err != nil {
			return comparison{}, false
		}
		switch metric {
		case MetricShifts, MetricNightShifts, MetricHours, MetricConsecutiveDays, MetricWeekendShifts:
		default:
			return comparison{}, false
		}
		return comparison{metric: metric, op: op, value: value}, true
	}
	return comparison{}, false
}

func (c comparison) matches(metrics map[string]float64) bool {
	v := metrics[c.metric]
	switch c.op {
	case "<=":
		return v <= c.value
	case ">=":
		return v >= c.value
	case "==":
		return v == c.value
	case "!=":
		return v != c.value
	case "<":
		return v < c.value
	case ">":
		return v > c.value
	}
	return false
}

// employeeMetrics computes the expression metrics for one employee's work
func employeeMetrics(items []work) map[string]float64 {
	metrics := map[string]float64{}
	for _, w := range items {
		metrics[MetricShifts]++
		metrics[MetricHours] += w.slot.Hours()
		if w.slot.Category == model.CategoryNight {
			metrics[MetricNightShifts]++
		}
		if wd := w.slot.Date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			metrics[MetricWeekendShifts]++
		}
	}
	run, _ := longestRun(distinctDates(items, nil))
	metrics[MetricConsecutiveDays] = float64(run)
	return metrics
}

// matchingEmployees returns the employees whose metrics match the rule's expression.
// A malformed expression matches nobody.
func matchingEmployees(assignments []model.Assignment, ctx *Context, params Params) (string, []string) {
	expr := params.String("expression", "")
	cmp, ok := parseComparison(expr)
	if !ok {
		ctx.logger().Warn("Ignoring malformed rule expression", zap.String("expression", expr))
		return expr, nil
	}

	byEmployee := ctx.workByEmployee(assignments)
	var matched []string
	for _, id := range sortedEmployeeIDs(byEmployee) {
		if cmp.matches(employeeMetrics(byEmployee[id])) {
			matched = append(matched, id)
		}
	}
	return expr, matched
}

// expressionHard fails for every employee matching the expression
func expressionHard(assignments []model.Assignment, ctx *Context, params Params) HardResult {
	expr, matched := matchingEmployees(assignments, ctx, params)
	if len(matched) == 0 {
		return pass()
	}
	problems := make([]string, len(matched))
	for i, id := range matched {
		problems[i] = fmt.Sprintf("%q holds for %s", expr, id)
	}
	return fail(problems, map[string]any{"employees": matched})
}

// expressionSoft adds one point per employee matching the expression
func expressionSoft(assignments []model.Assignment, ctx *Context, params Params) SoftResult {
	expr, matched := matchingEmployees(assignments, ctx, params)
	if len(matched) == 0 {
		return SoftResult{}
	}
	return SoftResult{
		Penalty: float64(len(matched)),
		Message: fmt.Sprintf("%q holds for %d employees", expr, len(matched)),
		Details: map[string]any{"employees": matched},
	}
}
