package goals

import (
	"fmt"
	"strconv"
	"strings"
)

// RenderTemplate resolves every "{{ expr }}" placeholder in s against
// context using a narrow dotted-lookup / map-index grammar: an expr is a
// dot-separated chain of identifiers, each resolved as a map key against
// the previous step's value. Nothing resembling arbitrary code is ever
// evaluated — this replaces the Python original's unsafe
// eval(expr, {"__builtins__": {}}, context) call named in the source as the
// behavior this runtime must not reproduce.
func RenderTemplate(s string, context map[string]any) (string, error) {
	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			b.WriteString(rest)
			break
		}
		end += start

		b.WriteString(rest[:start])
		expr := strings.TrimSpace(rest[start+2 : end])
		val, err := lookup(expr, context)
		if err != nil {
			return "", fmt.Errorf("goals: rendering %q: %w", expr, err)
		}
		b.WriteString(stringify(val))
		rest = rest[end+2:]
	}
	return b.String(), nil
}

// lookup resolves a dotted path like "payload.status_code" against a root
// map, descending through nested maps one segment at a time. Any segment
// that does not resolve to a present key is an error; no indexing,
// function calls, arithmetic, or other expression forms are supported.
func lookup(expr string, root map[string]any) (any, error) {
	if expr == "" {
		return nil, fmt.Errorf("empty expression")
	}
	segments := strings.Split(expr, ".")
	var cur any = root
	for i, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot index non-map value at segment %q", seg)
		}
		val, ok := m[seg]
		if !ok {
			return nil, fmt.Errorf("unknown field %q", strings.Join(segments[:i+1], "."))
		}
		cur = val
	}
	return cur, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}
