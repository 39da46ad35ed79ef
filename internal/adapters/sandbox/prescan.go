package sandbox

import (
	"regexp"

	"github.com/andrescamacho/takaro-connector/internal/domain/shared"
)

// HelperModules are the only specifiers require accepts
var HelperModules = []string{"takaro", "@takaro/helpers"}

var requirePattern = regexp.MustCompile(`\brequire\s*\(?\s*["']([^"']*)["']`)

func isHelperModule(name string) bool {
	for _, m := range HelperModules {
		if m == name {
			return true
		}
	}
	return false
}

// CheckImports resolves every literal require in code before anything runs.
// The first unknown specifier is returned as an UnresolvedDependencyError.
func CheckImports(code string) error {
	for _, m := range requirePattern.FindAllStringSubmatch(code, -1) {
		if !isHelperModule(m[1]) {
			return shared.NewUnresolvedDependencyError(m[1])
		}
	}
	return nil
}
