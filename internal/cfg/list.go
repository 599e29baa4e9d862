package cfg

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// StringList is a list-valued setting. It accepts either a JSON array
// (["a","b"]) or a comma-separated string (a,b).
type StringList []string

func ParseStringList(v string) (StringList, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return StringList{}, nil
	}
	if strings.HasPrefix(v, "[") {
		var out []string
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("invalid JSON list %q: %w", v, err)
		}
		return clean(out), nil
	}
	return clean(strings.Split(v, ",")), nil
}

func clean(in []string) StringList {
	out := make(StringList, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Wildcard reports whether the list contains "*".
func (l StringList) Wildcard() bool { return slices.Contains(l, "*") }

func (l StringList) String() string { return strings.Join(l, ",") }
