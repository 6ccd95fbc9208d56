// Package process exposes allow-listed external commands as chart tasks.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os/exec"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/aretw0/docflow/pkg/task"
)

// EnvPrefix starts every variable the runner sets for a command.
const EnvPrefix = "DOCFLOW_"

// waitDelay bounds how long output is drained after the command is killed.
const waitDelay = time.Second

var envKey = regexp.MustCompile(`[^A-Z0-9_]`)

// Runner holds the allow-list of commands. Only registered commands run;
// action properties never reach the command line.
type Runner struct {
	registry map[string]CommandConfig
	baseDir  string
}

// RunnerOption configures the runner.
type RunnerOption func(*Runner)

// WithCommands populates the allow-list from a loaded config.
func WithCommands(commands map[string]CommandConfig) RunnerOption {
	return func(r *Runner) {
		for _, c := range commands {
			r.registry[c.Name] = c
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// NewRunner creates a new process runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: make(map[string]CommandConfig),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name string, command string, args ...string) {
	r.registry[name] = CommandConfig{Name: name, Command: command, Args: args}
}

// Names lists the registered commands.
func (r *Runner) Names() []string {
	return slices.Sorted(maps.Keys(r.registry))
}

// Install registers every command as a task. Existing tasks of the same
// name are replaced.
func (r *Runner) Install(reg *task.Registry) {
	for name, c := range r.registry {
		reg.Register(name, func(props map[string]any) (task.Task, error) {
			return &commandTask{runner: r, config: c, props: props}, nil
		})
	}
}

type commandTask struct {
	runner *Runner
	config CommandConfig
	props  map[string]any
}

// Execute runs the command. The handle is written to stdin as JSON and the
// action properties are passed as DOCFLOW_ARG_<NAME> variables. Output that
// parses as a JSON object or array becomes the structured result; anything
// else is returned as trimmed text.
func (t *commandTask) Execute(ctx context.Context, tc *task.Context) (any, error) {
	c := t.config
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	stdin, err := json.Marshal(tc.Handle)
	if err != nil {
		return nil, task.Fail(c.Name, "cannot encode handle", false, err)
	}

	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Dir = t.runner.baseDir
	cmd.Env = append(cmd.Environ(), t.environment(tc)...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, task.Fail(c.Name, "command interrupted", errors.Is(ctxErr, context.DeadlineExceeded), ctxErr)
		}
		reason := "command failed"
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			reason = fmt.Sprintf("command failed: %s", msg)
		}
		return nil, task.Fail(c.Name, reason, false, err)
	}

	return parseOutput(stdout.String()), nil
}

func (t *commandTask) environment(tc *task.Context) []string {
	env := []string{
		EnvPrefix + "HANDLE_ID=" + tc.Handle.ID,
		EnvPrefix + "WORKFLOW=" + tc.Handle.Workflow,
		EnvPrefix + "STATE=" + tc.Handle.State,
		EnvPrefix + "EVENT=" + tc.Event,
		EnvPrefix + "IDENTITY=" + tc.Identity,
	}
	for k, v := range t.config.Environment {
		env = append(env, k+"="+v)
	}
	for _, k := range slices.Sorted(maps.Keys(t.props)) {
		name := envKey.ReplaceAllString(strings.ToUpper(k), "_")
		env = append(env, EnvPrefix+"ARG_"+name+"="+envValue(t.props[k]))
	}
	return env
}

// envValue renders primitives as text and everything else as JSON.
func envValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case int, int64, float64, bool:
		return fmt.Sprintf("%v", v)
	}
	if data, err := json.Marshal(v); err == nil {
		return string(data)
	}
	return fmt.Sprintf("%v", v)
}

func parseOutput(out string) any {
	trimmed := strings.TrimSpace(out)
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var structured any
		if err := json.Unmarshal([]byte(trimmed), &structured); err == nil {
			return structured
		}
	}
	return trimmed
}
