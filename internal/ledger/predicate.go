package ledger

import (
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"fairgate/internal/domain"
)

const (
	predicateMaxSteps  = uint64(50_000)
	predicateTimeout   = 2 * time.Second
	predicateMaxLength = 4 * 1024
)

// Predicate is a sandboxed Starlark expression evaluated against one event
// at a time. The expression sees the event envelope and payload as
// read-only values and must yield a bool.
//
// Example: `event_type == "decision" and payload.get("outcome") == "DENY"`.
type Predicate struct {
	src string
}

// CompilePredicate validates a predicate expression up front. Evaluation
// re-parses the source so each run gets a fresh cancellable thread.
func CompilePredicate(src string) (*Predicate, error) {
	if len(src) > predicateMaxLength {
		return nil, domain.ErrValidation("predicate exceeds %d bytes", predicateMaxLength)
	}
	if _, err := (&syntax.FileOptions{}).ParseExpr("predicate", src, 0); err != nil {
		return nil, domain.ErrValidation("parse predicate: %v", err)
	}
	return &Predicate{src: src}, nil
}

// Match evaluates the predicate against one event.
func (p *Predicate) Match(e *domain.LedgerEvent) (bool, error) {
	thread := &starlark.Thread{Name: "ledger-predicate"}
	thread.SetMaxExecutionSteps(predicateMaxSteps)

	env := starlark.StringDict{
		"sequence_no":  starlark.MakeInt64(e.SequenceNo),
		"event_type":   starlark.String(e.EventType),
		"principal_id": starlark.String(e.PrincipalID),
		"role_at_time": starlark.String(e.RoleAtTime),
		"subject_id":   starlark.String(e.SubjectID),
		"created_at":   starlark.String(e.CreatedAt.UTC().Format(time.RFC3339Nano)),
		"payload":      toStarlark(e.Payload),
	}

	var result starlark.Value
	err := runStarlarkWithTimeout(thread, predicateTimeout, func() error {
		v, err := starlark.EvalOptions(&syntax.FileOptions{}, thread, "predicate", p.src, env)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		return false, domain.ErrValidation("evaluate predicate: %v", err)
	}

	b, ok := result.(starlark.Bool)
	if !ok {
		return false, domain.ErrValidation("predicate yielded %s, want bool", result.Type())
	}
	return bool(b), nil
}

func runStarlarkWithTimeout(thread *starlark.Thread, timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		return fn()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		thread.Cancel("predicate evaluation timed out")
		err := <-done
		if err != nil {
			return fmt.Errorf("predicate timed out after %s: %v", timeout, err)
		}
		return fmt.Errorf("predicate timed out after %s", timeout)
	}
}

// toStarlark converts a JSON-native Go value into a frozen Starlark value.
func toStarlark(v any) starlark.Value {
	switch t := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(t)
	case string:
		return starlark.String(t)
	case int64:
		return starlark.MakeInt64(t)
	case int:
		return starlark.MakeInt(t)
	case float64:
		if t == float64(int64(t)) {
			return starlark.MakeInt64(int64(t))
		}
		return starlark.Float(t)
	case []any:
		elems := make([]starlark.Value, len(t))
		for i, e := range t {
			elems[i] = toStarlark(e)
		}
		l := starlark.NewList(elems)
		l.Freeze()
		return l
	case []string:
		elems := make([]starlark.Value, len(t))
		for i, e := range t {
			elems[i] = starlark.String(e)
		}
		l := starlark.NewList(elems)
		l.Freeze()
		return l
	case map[string]any:
		d := starlark.NewDict(len(t))
		for k, e := range t {
			_ = d.SetKey(starlark.String(k), toStarlark(e))
		}
		d.Freeze()
		return d
	default:
		return starlark.String(fmt.Sprint(t))
	}
}
