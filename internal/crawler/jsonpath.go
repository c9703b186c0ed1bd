package crawler

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmespath/go-jmespath"
)

// Query is a list of JMESPath expressions tried in order. The first one that
// yields a non-null value wins, so a shifting provider schema is handled by
// adding expressions to configuration rather than code.
type Query struct {
	exprs []string
	comp  []*jmespath.JMESPath
}

func CompileQuery(exprs ...string) (*Query, error) {
	q := &Query{}
	for _, e := range exprs {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		c, err := jmespath.Compile(e)
		if err != nil {
			return nil, fmt.Errorf("compile path %q: %w", e, err)
		}
		q.exprs = append(q.exprs, e)
		q.comp = append(q.comp, c)
	}
	return q, nil
}

func MustCompileQuery(exprs ...string) *Query {
	q, err := CompileQuery(exprs...)
	if err != nil {
		panic(err)
	}
	return q
}

func (q *Query) String() string {
	return strings.Join(q.exprs, " | ")
}

// Search returns the first non-null, non-empty result, or nil.
func (q *Query) Search(doc any) any {
	if q == nil {
		return nil
	}
	for _, c := range q.comp {
		v, err := c.Search(doc)
		if err != nil || isEmpty(v) {
			continue
		}
		return v
	}
	return nil
}

// Text returns the first match rendered as a string.
func (q *Query) Text(doc any) string {
	s, _ := AsString(q.Search(doc))
	return s
}

func (q *Query) Strings(doc any) []string {
	return AsStrings(q.Search(doc))
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}

// AsString renders scalar JSON values as strings.
func AsString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

// AsStrings flattens a scalar or list into its non-empty string members.
func AsStrings(v any) []string {
	list, ok := v.([]any)
	if !ok {
		if s, ok := AsString(v); ok && s != "" {
			return []string{s}
		}
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := AsString(item); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}
