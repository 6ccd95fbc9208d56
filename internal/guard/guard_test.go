package guard

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapEnv struct {
	vars  map[string]any
	funcs map[string]func(args []any) (any, error)
	calls []string
}

func (m *mapEnv) Lookup(path []string) (any, bool) {
	v, ok := m.vars[strings.Join(path, ".")]
	return v, ok
}

func (m *mapEnv) Call(name string, args []any) (any, error) {
	m.calls = append(m.calls, name)
	fn, ok := m.funcs[name]
	if !ok {
		return nil, fmt.Errorf("unknown function %s", name)
	}
	return fn(args)
}

func constant(v any) func([]any) (any, error) {
	return func([]any) (any, error) { return v, nil }
}

func newEnv() *mapEnv {
	return &mapEnv{
		vars: map[string]any{
			"user":         "alice",
			"request.type": "publish",
			"count":        3,
			"approved":     true,
			"draft.holder": nil,
		},
		funcs: map[string]func([]any) (any, error){
			"isAdmin": constant(true),
			"isGuest": constant(false),
			"hasRequest": func(args []any) (any, error) {
				if len(args) == 0 {
					return true, nil
				}
				return args[0] == "publish", nil
			},
			"boom": func([]any) (any, error) { return nil, fmt.Errorf("boom") },
		},
	}
}

func TestEvalBool(t *testing.T) {
	tests := []struct {
		expr string
		want bool
	}{
		{`true`, true},
		{`!false`, true},
		{`approved`, true},
		{`isAdmin()`, true},
		{`isAdmin() && isGuest()`, false},
		{`isGuest() || isAdmin()`, true},
		{`!isGuest() && (approved || isGuest())`, true},
		{`user == "alice"`, true},
		{`user != 'alice'`, false},
		{`request.type == "publish"`, true},
		{`count == 3`, true},
		{`count > 2 && count <= 3`, true},
		{`count < -1`, false},
		{`count >= 3.5`, false},
		{`"abc" < "abd"`, true},
		{`draft.holder == null`, true},
		{`missing.value == null`, true},
		{`hasRequest("publish")`, true},
		{`hasRequest("delete")`, false},
		{`hasRequest()`, true},
		{`!!approved`, true},
		{`true || false && false`, true},
		{`!isGuest() == approved`, true},
		{`!(user == "bob")`, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			e, err := Compile(tt.expr)
			require.NoError(t, err)
			got, err := e.EvalBool(newEnv())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_ShortCircuit(t *testing.T) {
	env := newEnv()

	ok, err := MustCompile(`isGuest() && boom()`).EvalBool(env)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = MustCompile(`isAdmin() || boom()`).EvalBool(env)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{"isGuest", "isAdmin"}, env.calls)
}

func TestEval_RuntimeErrors(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr string
	}{
		{`boom()`, "boom"},
		{`count`, "not a boolean"},
		{`!user`, "expects a boolean"},
		{`!user == "alice"`, "expects a boolean"},
		{`approved && count`, "expects booleans"},
		{`user < 3`, "cannot order"},
		{`unknown()`, "unknown function"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := MustCompile(tt.expr).EvalBool(newEnv())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_NotBindsTighterThanComparison(t *testing.T) {
	e := MustCompile(`!approved == isGuest()`)
	cmp, ok := e.root.(*compare)
	require.True(t, ok, "root is %T", e.root)
	_, ok = cmp.left.(*not)
	assert.True(t, ok, "left operand is %T", cmp.left)

	e = MustCompile(`!(approved == isGuest())`)
	_, ok = e.root.(*not)
	assert.True(t, ok, "root is %T", e.root)
}

func TestEval_Values(t *testing.T) {
	v, err := MustCompile(`user`).Eval(newEnv())
	require.NoError(t, err)
	assert.Equal(t, "alice", v)

	v, err = MustCompile(`42`).Eval(newEnv())
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
}

func TestCompile_Errors(t *testing.T) {
	for _, src := range []string{
		``,
		`a =`,
		`a = b`,
		`(a`,
		`a &`,
		`"open`,
		`a b`,
		`f(a,`,
		`a.`,
		`a.b()`,
		`#`,
	} {
		t.Run(src, func(t *testing.T) {
			_, err := Compile(src)
			assert.Error(t, err)
		})
	}
}

func TestExpr_Calls(t *testing.T) {
	e := MustCompile(`canPublish() && (isHolder() || hasRequest(reqType())) && !canPublish()`)
	assert.Equal(t, []string{"canPublish", "hasRequest", "isHolder", "reqType"}, e.Calls())
	assert.Empty(t, MustCompile(`a == b`).Calls())
}

func TestIsFact(t *testing.T) {
	assert.True(t, IsFact(FactIsHolder))
	assert.False(t, IsFact("canPublish"))
}
