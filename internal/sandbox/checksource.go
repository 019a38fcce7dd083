// Package sandbox implements the Script Host's source-safety gate: a
// deny-list filter applied to a user's uploaded algorithm before it is ever
// loaded, and a minimal embeddable runtime for executing it. The filter is
// defense-in-depth, not a sandbox in itself — real isolation comes from
// running the script in its own process with no filesystem or network
// privileges beyond the IPC socket and shared memory segment.
package sandbox

import (
	"fmt"
	"strings"

	"tradecore/internal/apperrors"
)

// DefaultDenyTokens is the deny-list a script's source must not contain,
// checked after comment-stripping.
var DefaultDenyTokens = []string{
	"import", "read", "write", "file", "exec", "eval",
	"socket", "http", "requests", "urllib", "sys", "traceback", "__",
}

// DefaultAllowedImports is prepended ahead of a script's own source before
// it is handed to the runtime.
var DefaultAllowedImports = []string{"math", "numpy", "pandas"}

// CheckSource strips comment lines, then rejects source containing any deny
// token. A comment line is only stripped when it carries no single quote;
// one that does is left in place so a deny token hidden inside it is still
// caught by the scan below.
func CheckSource(source string, denyTokens []string) (string, error) {
	lines := strings.Split(source, "\n")
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && !strings.Contains(trimmed, "'") {
			continue
		}
		kept = append(kept, line)
	}

	filtered := strings.Join(kept, "\n")
	lower := strings.ToLower(filtered)

	for _, token := range denyTokens {
		if strings.Contains(lower, strings.ToLower(token)) {
			return "", apperrors.NewScriptError(fmt.Sprintf("source contains denied token %q", token), nil)
		}
	}

	return filtered, nil
}

// Prepare runs CheckSource and prepends the allowed-import preamble the
// runtime expects ahead of the user's own source.
func Prepare(source string, denyTokens, allowedImports []string) (string, error) {
	filtered, err := CheckSource(source, denyTokens)
	if err != nil {
		return "", err
	}

	var preamble strings.Builder
	for _, lib := range allowedImports {
		preamble.WriteString("import ")
		preamble.WriteString(lib)
		preamble.WriteString("\n")
	}
	preamble.WriteString(filtered)

	return preamble.String(), nil
}
