package patch

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

// Pointer converts a dot path such as spec.storage.data.volumes.0.size into a JSON
// pointer. A leading slash means the path already is a pointer.
func Pointer(path string) string {
	if strings.HasPrefix(path, "/") {
		return path
	}
	parts := strings.Split(path, ".")
	var b strings.Builder
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(pointerEscaper.Replace(p))
	}
	return b.String()
}

func isConditional(path string) bool {
	return strings.HasPrefix(strings.TrimSpace(path), "$")
}

type segmentKind int

const (
	segField segmentKind = iota
	segIndex
	segFilter
)

type segment struct {
	kind  segmentKind
	name  string
	index int
	// filter
	field string
	value interface{}
}

// parseConditional splits $.a.b[0].c[?(@.name=="x")].d into segments. Only field
// names, numeric indices and equality filters are understood.
func parseConditional(path string) ([]segment, error) {
	s := strings.TrimSpace(path)
	if !strings.HasPrefix(s, "$") {
		return nil, errors.Errorf("conditional path %q must start with $", path)
	}
	s = s[1:]
	var segs []segment
	for len(s) > 0 {
		switch s[0] {
		case '.':
			s = s[1:]
			end := strings.IndexAny(s, ".[")
			if end < 0 {
				end = len(s)
			}
			if end == 0 {
				return nil, errors.Errorf("empty field name in %q", path)
			}
			segs = append(segs, segment{kind: segField, name: s[:end]})
			s = s[end:]
		case '[':
			end := closingBracket(s)
			if end < 0 {
				return nil, errors.Errorf("unterminated bracket in %q", path)
			}
			seg, err := parseBracket(s[1:end])
			if err != nil {
				return nil, errors.Wrapf(err, "path %q", path)
			}
			segs = append(segs, seg)
			s = s[end+1:]
		default:
			return nil, errors.Errorf("unexpected %q in %q", s[0], path)
		}
	}
	return segs, nil
}

// closingBracket finds the ] matching s[0], skipping quoted text.
func closingBracket(s string) int {
	var quote byte
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ']':
			return i
		}
	}
	return -1
}

func parseBracket(body string) (segment, error) {
	body = strings.TrimSpace(body)
	if n, err := strconv.Atoi(body); err == nil {
		return segment{kind: segIndex, index: n}, nil
	}
	if len(body) >= 2 && (body[0] == '\'' || body[0] == '"') && body[len(body)-1] == body[0] {
		return segment{kind: segField, name: body[1 : len(body)-1]}, nil
	}
	if !strings.HasPrefix(body, "?(") || !strings.HasSuffix(body, ")") {
		return segment{}, errors.Errorf("unsupported selector [%s]", body)
	}
	expr := strings.TrimSpace(body[2 : len(body)-1])
	lhs, rhs, ok := strings.Cut(expr, "==")
	if !ok {
		return segment{}, errors.Errorf("unsupported filter %q: only == is allowed", expr)
	}
	lhs = strings.TrimSpace(lhs)
	if !strings.HasPrefix(lhs, "@.") {
		return segment{}, errors.Errorf("filter %q must compare a field of @", expr)
	}
	value, err := parseLiteral(strings.TrimSpace(rhs))
	if err != nil {
		return segment{}, errors.Wrapf(err, "filter %q", expr)
	}
	return segment{kind: segFilter, field: lhs[2:], value: value}, nil
}

func parseLiteral(s string) (interface{}, error) {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1], nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, errors.Errorf("invalid literal %s", s)
	}
	return v, nil
}

// resolveConditional evaluates path against tree and returns a JSON pointer per
// selected node.
func resolveConditional(tree interface{}, path string) ([]string, error) {
	segs, err := parseConditional(path)
	if err != nil {
		return nil, err
	}
	type match struct {
		node    interface{}
		pointer string
	}
	current := []match{{node: tree}}
	for _, seg := range segs {
		var next []match
		for _, m := range current {
			switch seg.kind {
			case segField:
				obj, ok := m.node.(map[string]interface{})
				if !ok {
					continue
				}
				child, ok := obj[seg.name]
				if !ok {
					// Let the last segment name a key json-patch will report as missing.
					child = nil
				}
				next = append(next, match{node: child, pointer: m.pointer + "/" + pointerEscaper.Replace(seg.name)})
			case segIndex:
				arr, ok := m.node.([]interface{})
				if !ok || seg.index < 0 || seg.index >= len(arr) {
					continue
				}
				next = append(next, match{node: arr[seg.index], pointer: m.pointer + "/" + strconv.Itoa(seg.index)})
			case segFilter:
				arr, ok := m.node.([]interface{})
				if !ok {
					continue
				}
				for i, el := range arr {
					obj, ok := el.(map[string]interface{})
					if !ok {
						continue
					}
					if v, ok := obj[seg.field]; ok && reflect.DeepEqual(v, seg.value) {
						next = append(next, match{node: el, pointer: m.pointer + "/" + strconv.Itoa(i)})
					}
				}
			}
		}
		current = next
	}
	if len(current) == 0 {
		return nil, errors.Wrapf(ErrNoMatch, "%s", path)
	}
	pointers := make([]string, 0, len(current))
	for _, m := range current {
		pointers = append(pointers, m.pointer)
	}
	return pointers, nil
}
