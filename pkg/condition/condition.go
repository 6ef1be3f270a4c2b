// Package condition evaluates the optional boolean predicates guarding
// workflow transitions. An evaluation sees a read-only snapshot of the
// record, the acting identity and a small set of date helpers, and is
// bounded by both a step limit and a wall-clock timeout.
package condition

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a single evaluation so a pathological
	// expression cannot stall a request thread.
	DefaultTimeout = 200 * time.Millisecond

	defaultMaxSteps = 10_000
)

// Env is the read-only context an expression evaluates against.
type Env struct {
	Fields map[string]any
	UserID string
	Roles  []string
	State  string
	Owner  string
	now    func() time.Time
}

// NewEnv builds an evaluation environment from a record snapshot and
// the acting identity. The fields map is copied; expressions can never
// write back into the record.
func NewEnv(fields map[string]any, state, owner, userID string, roles []string) *Env {
	snapshot := make(map[string]any, len(fields))
	for k, v := range fields {
		snapshot[k] = v
	}

	return &Env{
		Fields: snapshot,
		UserID: userID,
		Roles:  roles,
		State:  state,
		Owner:  owner,
		now:    time.Now,
	}
}

// Evaluator evaluates condition expressions with bounded execution.
// The zero value is not usable; construct with NewEvaluator.
type Evaluator struct {
	timeout  time.Duration
	maxSteps int
}

func NewEvaluator(timeout time.Duration) *Evaluator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Evaluator{timeout: timeout, maxSteps: defaultMaxSteps}
}

// Evaluate parses and evaluates the expression against env. An empty
// expression is always true. The result must be a boolean; anything
// else is a type mismatch.
func (e *Evaluator) Evaluate(ctx context.Context, expression string, env *Env) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}

	root, err := parse(expression)
	if err != nil {
		return false, &EvalError{Expression: expression, Err: fmt.Errorf("%w: %v", ErrParse, err)}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ev := &evaluation{ctx: ctx, env: env, steps: e.maxSteps}

	value, err := ev.eval(root)
	if err != nil {
		return false, &EvalError{Expression: expression, Err: err}
	}

	result, ok := value.(bool)
	if !ok {
		return false, &EvalError{Expression: expression, Err: fmt.Errorf("%w: expression yields %T, not bool", ErrType, value)}
	}

	return result, nil
}

type evaluation struct {
	ctx   context.Context
	env   *Env
	steps int
}

func (ev *evaluation) step() error {
	ev.steps--
	if ev.steps <= 0 {
		return fmt.Errorf("%w: step limit exceeded", ErrTimeout)
	}

	select {
	case <-ev.ctx.Done():
		return fmt.Errorf("%w: %v", ErrTimeout, ev.ctx.Err())
	default:
		return nil
	}
}

func (ev *evaluation) eval(n *node) (any, error) {
	if err := ev.step(); err != nil {
		return nil, err
	}

	switch n.kind {
	case nodeLiteral:
		return n.value, nil
	case nodeIdent:
		return ev.resolve(n.name)
	case nodeCall:
		return ev.call(n)
	case nodeUnary:
		return ev.evalNot(n)
	case nodeBinary:
		return ev.evalBinary(n)
	default:
		return nil, fmt.Errorf("%w: unknown node kind %d", ErrType, n.kind)
	}
}

func (ev *evaluation) evalNot(n *node) (any, error) {
	value, err := ev.eval(n.left)
	if err != nil {
		return nil, err
	}

	b, ok := value.(bool)
	if !ok {
		return nil, fmt.Errorf("%w: operand of ! is %T, not bool", ErrType, value)
	}

	return !b, nil
}

func (ev *evaluation) evalBinary(n *node) (any, error) {
	left, err := ev.eval(n.left)
	if err != nil {
		return nil, err
	}

	// Short-circuit the connectives before touching the right side.
	switch n.op {
	case "&&", "||":
		lb, ok := left.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: operand of %s is %T, not bool", ErrType, n.op, left)
		}

		if n.op == "&&" && !lb {
			return false, nil
		}

		if n.op == "||" && lb {
			return true, nil
		}

		right, err := ev.eval(n.right)
		if err != nil {
			return nil, err
		}

		rb, ok := right.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: operand of %s is %T, not bool", ErrType, n.op, right)
		}

		return rb, nil
	}

	right, err := ev.eval(n.right)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return equals(left, right)
	case "!=":
		eq, err := equals(left, right)
		if err != nil {
			return nil, err
		}

		return !eq, nil
	case "<", "<=", ">", ">=":
		return compare(n.op, left, right)
	case "in":
		return contains(left, right)
	default:
		return nil, fmt.Errorf("%w: unknown operator %q", ErrType, n.op)
	}
}

// resolve looks up a dotted identifier. Bare names resolve against the
// record fields; the "record", "user" and "workflow" prefixes expose
// the rest of the environment.
func (ev *evaluation) resolve(name string) (any, error) {
	head, rest, dotted := strings.Cut(name, ".")

	if !dotted {
		switch name {
		case "record":
			return nil, fmt.Errorf("%w: %q is not a value", ErrType, name)
		case "user":
			return ev.env.UserID, nil
		}

		if value, ok := ev.env.Fields[name]; ok {
			return normalize(value), nil
		}

		return nil, nil
	}

	switch head {
	case "record":
		switch rest {
		case "state":
			return ev.env.State, nil
		case "owner":
			return ev.env.Owner, nil
		}

		if value, ok := ev.env.Fields[rest]; ok {
			return normalize(value), nil
		}

		return nil, nil
	case "user":
		switch rest {
		case "id":
			return ev.env.UserID, nil
		case "roles":
			roles := make([]any, len(ev.env.Roles))
			for i, r := range ev.env.Roles {
				roles[i] = r
			}

			return roles, nil
		}
	}

	return nil, fmt.Errorf("%w: unknown identifier %q", ErrType, name)
}

func (ev *evaluation) call(n *node) (any, error) {
	args := make([]any, len(n.args))

	for i, arg := range n.args {
		value, err := ev.eval(arg)
		if err != nil {
			return nil, err
		}

		args[i] = value
	}

	switch n.name {
	case "now":
		if len(args) != 0 {
			return nil, fmt.Errorf("%w: now() takes no arguments", ErrType)
		}

		return ev.env.now(), nil

	case "today":
		if len(args) != 0 {
			return nil, fmt.Errorf("%w: today() takes no arguments", ErrType)
		}

		now := ev.env.now()
		year, month, day := now.Date()

		return time.Date(year, month, day, 0, 0, 0, 0, now.Location()), nil

	case "date":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: date() takes one argument", ErrType)
		}

		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("%w: date() argument must be a string", ErrType)
		}

		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, fmt.Errorf("%w: date(%q): %v", ErrType, s, err)
		}

		return t, nil

	case "add_days":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: add_days() takes two arguments", ErrType)
		}

		t, ok := args[0].(time.Time)
		if !ok {
			return nil, fmt.Errorf("%w: add_days() first argument must be a date", ErrType)
		}

		days, ok := args[1].(float64)
		if !ok {
			return nil, fmt.Errorf("%w: add_days() second argument must be a number", ErrType)
		}

		return t.AddDate(0, 0, int(days)), nil

	default:
		return nil, fmt.Errorf("%w: unknown function %q", ErrType, n.name)
	}
}

// normalize converts the numeric types a JSON-ish record may carry
// into float64 so comparisons behave uniformly.
func normalize(value any) any {
	switch v := value.(type) {
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case float32:
		return float64(v)
	default:
		return value
	}
}

// equatable reports whether a value may appear as an equality operand.
// Only the scalar types the evaluator produces qualify; slices and maps
// (role lists, JSON arrays and objects in record fields) are rejected
// rather than handed to a Go == that would panic on them.
func equatable(value any) bool {
	switch value.(type) {
	case nil, bool, string, float64, time.Time:
		return true
	default:
		return false
	}
}

func equals(left, right any) (bool, error) {
	if !equatable(left) {
		return false, fmt.Errorf("%w: %T does not support equality", ErrType, left)
	}

	if !equatable(right) {
		return false, fmt.Errorf("%w: %T does not support equality", ErrType, right)
	}

	if l, ok := left.(time.Time); ok {
		r, ok := right.(time.Time)

		return ok && l.Equal(r), nil
	}

	return left == right, nil
}

func compare(op string, left, right any) (any, error) {
	switch l := left.(type) {
	case float64:
		r, ok := right.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: cannot compare number with %T", ErrType, right)
		}

		return applyOrder(op, l < r, l == r), nil
	case string:
		r, ok := right.(string)
		if !ok {
			return nil, fmt.Errorf("%w: cannot compare string with %T", ErrType, right)
		}

		return applyOrder(op, l < r, l == r), nil
	case time.Time:
		r, ok := right.(time.Time)
		if !ok {
			return nil, fmt.Errorf("%w: cannot compare date with %T", ErrType, right)
		}

		return applyOrder(op, l.Before(r), l.Equal(r)), nil
	default:
		return nil, fmt.Errorf("%w: %T is not ordered", ErrType, left)
	}
}

func applyOrder(op string, less, equal bool) bool {
	switch op {
	case "<":
		return less
	case "<=":
		return less || equal
	case ">":
		return !less && !equal
	default: // ">="
		return !less
	}
}

func contains(needle, haystack any) (any, error) {
	switch hs := haystack.(type) {
	case []any:
		for _, item := range hs {
			eq, err := equals(needle, normalize(item))
			if err != nil {
				return nil, err
			}

			if eq {
				return true, nil
			}
		}

		return false, nil
	case string:
		s, ok := needle.(string)
		if !ok {
			return nil, fmt.Errorf("%w: left side of 'in' must be a string when right side is", ErrType)
		}

		return strings.Contains(hs, s), nil
	default:
		return nil, fmt.Errorf("%w: right side of 'in' is %T, not a list", ErrType, haystack)
	}
}
