package config

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// DefaultStarlarkTimeout bounds a single hook evaluation.
const DefaultStarlarkTimeout = 10 * time.Second

// ErrNotCallable is returned by Call when the named global is missing or is
// not a function.
var ErrNotCallable = errors.New("starlark global is not callable")

// StarlarkEvaluator runs user supplied Starlark hooks with a deadline.
type StarlarkEvaluator struct {
	timeout time.Duration
	print   func(msg string)
}

// StarlarkOption configures a StarlarkEvaluator.
type StarlarkOption func(*StarlarkEvaluator)

// WithPrint receives output of the Starlark print builtin. It is dropped by
// default.
func WithPrint(fn func(msg string)) StarlarkOption {
	return func(se *StarlarkEvaluator) { se.print = fn }
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration, opts ...StarlarkOption) *StarlarkEvaluator {
	if timeout <= 0 {
		timeout = DefaultStarlarkTimeout
	}
	se := &StarlarkEvaluator{timeout: timeout}
	for _, opt := range opts {
		opt(se)
	}
	return se
}

// Call executes script, then calls its global function fn with args.
func (se *StarlarkEvaluator) Call(ctx context.Context, filename, script, fn string, args ...interface{}) (interface{}, error) {
	var out interface{}
	err := se.withThread(ctx, func(thread *starlark.Thread) error {
		globals, err := se.exec(thread, filename, script)
		if err != nil {
			return err
		}

		callable, ok := globals[fn].(starlark.Callable)
		if !ok {
			return fmt.Errorf("%s: %w: %s", filename, ErrNotCallable, fn)
		}

		sargs := make(starlark.Tuple, len(args))
		for i, a := range args {
			v, err := toStarlarkValue(a)
			if err != nil {
				return fmt.Errorf("argument %d: %w", i, err)
			}
			sargs[i] = v
		}

		ret, err := starlark.Call(thread, callable, sargs, nil)
		if err != nil {
			return fmt.Errorf("%s: %s failed: %w", filename, fn, err)
		}
		out, err = fromStarlarkValue(ret)
		return err
	})
	return out, err
}

func (se *StarlarkEvaluator) exec(thread *starlark.Thread, filename, script string) (starlark.StringDict, error) {
	predeclared := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}

	globals, err := starlark.ExecFile(thread, filename, script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}
	return globals, nil
}

// withThread runs fn on a fresh thread that is cancelled when ctx ends or
// the evaluator timeout elapses.
func (se *StarlarkEvaluator) withThread(ctx context.Context, fn func(*starlark.Thread) error) error {
	ctx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: "hu",
		Print: func(_ *starlark.Thread, msg string) {
			if se.print != nil {
				se.print(msg)
			}
		},
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	err := fn(thread)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("starlark execution interrupted: %w", ctx.Err())
	}
	return err
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]string:
		m := make(map[string]interface{}, len(val))
		for k, s := range val {
			m[k] = s
		}
		return toStarlarkValue(m)
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dict := starlark.NewDict(len(val))
		for _, k := range keys {
			sv, err := toStarlarkValue(val[k])
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (interface{}, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]interface{}, len(val))
		for i, item := range val {
			gv, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = gv
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]interface{}, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		sd := make(starlark.StringDict)
		val.ToStringDict(sd)
		dict := make(map[string]interface{}, len(sd))
		for k, item := range sd {
			gv, err := fromStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			dict[k] = gv
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
