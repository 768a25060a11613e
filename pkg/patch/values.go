package patch

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	utiljson "k8s.io/apimachinery/pkg/util/json"
)

// ParseValues parses --json-values input: key1.sub=value1,key2=value2.
//
// A backslash before = or , makes it literal. Pairs are only split on commas outside
// quotes and outside {} or [] so inline JSON can be passed unescaped. A single or
// double quote at the start of a key or value quotes it up to the matching quote;
// double quotes also delimit strings inside JSON, where backslash escapes such as
// \" are kept as written. Each value is resolved with ResolveValue.
func ParseValues(s string) (*orderedmap.OrderedMap[string, interface{}], error) {
	pairs, err := splitPairs(s)
	if err != nil {
		return nil, invalid(err)
	}
	out := orderedmap.New[string, interface{}]()
	for _, p := range pairs {
		if p.key == "" {
			return nil, invalid(errors.Errorf("missing key in %q", s))
		}
		if !p.hasValue {
			return nil, invalid(errors.Errorf("key %q has no value; expected key=value", p.key))
		}
		v, err := ResolveValue(p.value)
		if err != nil {
			return nil, invalid(errors.Wrapf(err, "value for %s", p.key))
		}
		out.Set(p.key, v)
	}
	return out, nil
}

// ParsePaths splits a --json-path list.
func ParsePaths(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ResolveValue turns a raw value into a document value. A path to an existing file
// yields the file's JSON content (or its text when it is not JSON). Otherwise valid
// JSON is decoded, and anything else is kept as a string.
func ResolveValue(raw string) (interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.ContainsAny(raw, "{[\n") {
		if info, err := os.Stat(raw); err == nil && !info.IsDir() {
			content, err := os.ReadFile(raw)
			if err != nil {
				return nil, errors.Wrapf(err, "read value file %s", raw)
			}
			var v interface{}
			if err := utiljson.Unmarshal(content, &v); err != nil {
				return strings.TrimRight(string(content), "\n"), nil
			}
			return v, nil
		}
	}
	var v interface{}
	if err := utiljson.Unmarshal([]byte(raw), &v); err == nil {
		return v, nil
	}
	return unquote(raw), nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

type pair struct {
	key      string
	value    string
	hasValue bool
}

func splitPairs(s string) ([]pair, error) {
	var (
		pairs []pair
		cur   pair
		buf   strings.Builder
		depth int
		// quote is the delimiter of the quoted run being read, or 0.
		quote byte
	)
	flush := func() {
		if cur.hasValue {
			cur.value = buf.String()
		} else {
			cur.key = strings.TrimSpace(buf.String())
		}
		if cur.key != "" || cur.hasValue {
			pairs = append(pairs, cur)
		}
		cur = pair{}
		buf.Reset()
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			next := s[i+1]
			switch {
			case next == '=' || next == ',':
				buf.WriteByte(next)
				i++
				continue
			case quote != 0:
				// Other escapes belong to the quoted text, e.g. \" inside a JSON string.
				buf.WriteByte(c)
				buf.WriteByte(next)
				i++
				continue
			}
		}
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"':
			quote = c
		case c == '\'' && strings.TrimSpace(buf.String()) == "":
			// Single quotes only delimit a whole key or value, so apostrophes inside
			// plain text stay literal.
			quote = c
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
		case c == '=' && !cur.hasValue && depth == 0:
			cur.key = strings.TrimSpace(buf.String())
			cur.hasValue = true
			buf.Reset()
			continue
		case c == ',' && depth == 0:
			flush()
			continue
		}
		buf.WriteByte(c)
	}
	if quote != 0 {
		return nil, errors.Errorf("unterminated quote in %q", s)
	}
	if depth != 0 {
		return nil, errors.Errorf("unbalanced brackets in %q", s)
	}
	flush()
	return pairs, nil
}
