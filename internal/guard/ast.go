package guard

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"
)

type node interface {
	eval(env Env) (any, error)
	calls(out map[string]struct{})
}

type literal struct{ value any }

func (l *literal) eval(Env) (any, error) { return l.value, nil }
func (l *literal) calls(map[string]struct{}) {}

type ident struct{ path []string }

func (i *ident) eval(env Env) (any, error) {
	v, _ := env.Lookup(i.path)
	return v, nil
}
func (i *ident) calls(map[string]struct{}) {}

type call struct {
	name string
	args []node
}

func (c *call) eval(env Env) (any, error) {
	args := make([]any, len(c.args))
	for i, a := range c.args {
		v, err := a.eval(env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return env.Call(c.name, args)
}

func (c *call) calls(out map[string]struct{}) {
	out[c.name] = struct{}{}
	for _, a := range c.args {
		a.calls(out)
	}
}

type not struct{ operand node }

func (n *not) eval(env Env) (any, error) {
	v, err := n.operand.eval(env)
	if err != nil {
		return nil, err
	}
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("'!' expects a boolean, got %s", describe(v))
	}
	return !b, nil
}
func (n *not) calls(out map[string]struct{}) { n.operand.calls(out) }

type logical struct {
	and         bool
	left, right node
}

func (l *logical) eval(env Env) (any, error) {
	op := "||"
	if l.and {
		op = "&&"
	}
	lv, err := l.left.eval(env)
	if err != nil {
		return nil, err
	}
	lb, ok := lv.(bool)
	if !ok {
		return nil, fmt.Errorf("'%s' expects booleans, got %s", op, describe(lv))
	}
	if l.and != lb {
		return lb, nil
	}
	rv, err := l.right.eval(env)
	if err != nil {
		return nil, err
	}
	rb, ok := rv.(bool)
	if !ok {
		return nil, fmt.Errorf("'%s' expects booleans, got %s", op, describe(rv))
	}
	return rb, nil
}

func (l *logical) calls(out map[string]struct{}) {
	l.left.calls(out)
	l.right.calls(out)
}

type compare struct {
	op          tokenKind
	text        string
	left, right node
}

func (c *compare) eval(env Env) (any, error) {
	lv, err := c.left.eval(env)
	if err != nil {
		return nil, err
	}
	rv, err := c.right.eval(env)
	if err != nil {
		return nil, err
	}
	lv, rv = normalize(lv), normalize(rv)

	switch c.op {
	case tokEq:
		return equal(lv, rv), nil
	case tokNeq:
		return !equal(lv, rv), nil
	}

	cmp, err := order(lv, rv)
	if err != nil {
		return nil, fmt.Errorf("'%s': %w", c.text, err)
	}
	switch c.op {
	case tokLt:
		return cmp < 0, nil
	case tokLte:
		return cmp <= 0, nil
	case tokGt:
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

func (c *compare) calls(out map[string]struct{}) {
	c.left.calls(out)
	c.right.calls(out)
}

// normalize maps numeric kinds to float64 and named string kinds to string.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case float64, string, bool, time.Time:
		return t
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	case fmt.Stringer:
		return t.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
	}
	return v
}

func equal(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Equal(tb)
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func order(a, b any) (int, error) {
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			switch {
			case x < y:
				return -1, nil
			case x > y:
				return 1, nil
			case math.IsNaN(x) || math.IsNaN(y):
				return 0, fmt.Errorf("cannot order NaN")
			}
			return 0, nil
		}
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y), nil
		}
	}
	return 0, fmt.Errorf("cannot order %s and %s", describe(a), describe(b))
}

func describe(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
