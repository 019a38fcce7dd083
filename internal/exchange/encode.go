package exchange

import (
	"sort"
	"strings"
)

// encodeSorted joins values as alphabetically sorted key=value pairs, the
// same rule url.Values.Encode applies to signed REST query strings.
func encodeSorted(values map[string]string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+values[k])
	}
	return strings.Join(parts, "&")
}
