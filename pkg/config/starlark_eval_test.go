package config

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStarlarkEvaluator_CallValues(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name    string
		script  string
		args    []interface{}
		want    interface{}
		check   func(*testing.T, interface{})
		wantErr bool
	}{
		{
			name:   "arithmetic",
			script: "def f():\n    return 2 + 2\n",
			want:   int64(4),
		},
		{
			name:   "string arguments",
			script: "def f(prefix, tag):\n    return prefix + tag\n",
			args:   []interface{}{"release/", "v1.2.3"},
			want:   "release/v1.2.3",
		},
		{
			name:   "none",
			script: "def f():\n    pass\n",
			want:   nil,
		},
		{
			name:   "struct result",
			script: "def f():\n    return struct(tag = \"v1.0.0\", count = 3)\n",
			check: func(t *testing.T, out interface{}) {
				info, ok := out.(map[string]interface{})
				if !ok {
					t.Fatalf("result is %T", out)
				}
				if info["tag"] != "v1.0.0" || info["count"] != int64(3) {
					t.Errorf("info = %v", info)
				}
			},
		},
		{
			name:    "syntax error",
			script:  "x = (\n",
			wantErr: true,
		},
		{
			name:    "runtime error",
			script:  "def f():\n    return 1 // 0\n",
			wantErr: true,
		},
		{
			name:    "unsupported argument",
			script:  "def f(x):\n    return x\n",
			args:    []interface{}{struct{}{}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := evaluator.Call(ctx, "test.star", tt.script, "f", tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Call() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if tt.check != nil {
				tt.check(t, out)
				return
			}
			if out != tt.want {
				t.Errorf("Call() = %#v, want %#v", out, tt.want)
			}
		})
	}
}

const changelogScript = `
def changelog(previous_tag, release_tag, commits):
    lines = ["Release %s (since %s)" % (release_tag, previous_tag)]
    for c in commits:
        lines.append(" - %s %s (%s)" % (c["hash"], c["subject"], c["author"]))
    return "\n".join(lines)
`

func TestStarlarkEvaluator_Call(t *testing.T) {
	evaluator := NewStarlarkEvaluator(time.Second)

	commits := []interface{}{
		map[string]interface{}{"hash": "abc1234", "subject": "Fix login", "author": "ann"},
		map[string]interface{}{"hash": "def5678", "subject": "Add export", "author": "bob"},
	}

	out, err := evaluator.Call(context.Background(), "changelog.star", changelogScript, "changelog", "v1.0.0", "v1.1.0", commits)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	want := "Release v1.1.0 (since v1.0.0)\n - abc1234 Fix login (ann)\n - def5678 Add export (bob)"
	if out != want {
		t.Errorf("Call() = %q, want %q", out, want)
	}
}

func TestStarlarkEvaluator_CallNotCallable(t *testing.T) {
	evaluator := NewStarlarkEvaluator(time.Second)

	_, err := evaluator.Call(context.Background(), "x.star", "changelog = 1\n", "changelog")
	if !errors.Is(err, ErrNotCallable) {
		t.Fatalf("expected ErrNotCallable, got %v", err)
	}

	_, err = evaluator.Call(context.Background(), "x.star", "", "changelog")
	if !errors.Is(err, ErrNotCallable) {
		t.Fatalf("expected ErrNotCallable for missing function, got %v", err)
	}
}

func TestStarlarkEvaluator_Timeout(t *testing.T) {
	evaluator := NewStarlarkEvaluator(50 * time.Millisecond)

	script := `
def spin():
    n = 0
    for i in range(100000000):
        n += i
    return n
`
	start := time.Now()
	_, err := evaluator.Call(context.Background(), "spin.star", script, "spin")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "interrupted") {
		t.Errorf("unexpected error: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("cancellation took %v", time.Since(start))
	}
}

func TestStarlarkEvaluator_Print(t *testing.T) {
	var got []string
	evaluator := NewStarlarkEvaluator(time.Second, WithPrint(func(msg string) {
		got = append(got, msg)
	}))

	if _, err := evaluator.Call(context.Background(), "p.star", "def f():\n    print(\"hello\")\n", "f"); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if len(got) != 1 || got[0] != "hello" {
		t.Errorf("print captured %v", got)
	}
}

func TestToStarlarkValue_Unsupported(t *testing.T) {
	if _, err := toStarlarkValue(struct{}{}); err == nil {
		t.Error("expected unsupported type error")
	}
}
