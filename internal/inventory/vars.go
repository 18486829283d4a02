package inventory

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Vars is the flat variable set ansible-inventory reports for one host.
type Vars map[string]string

// Listing maps host names to their variables, as found under _meta.hostvars.
type Listing map[string]Vars

// Hosts returns the host names in lexical order.
func (l Listing) Hosts() []string {
	out := make([]string, 0, len(l))
	for h := range l {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// flatten converts decoded JSON values into Vars. Scalars become their
// literal text; objects and arrays are kept as compact JSON.
func flatten(raw map[string]any) Vars {
	out := make(Vars, len(raw))
	for k, val := range raw {
		out[k] = stringify(val)
	}
	return out
}

func stringify(val any) string {
	switch x := val.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
