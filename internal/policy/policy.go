package policy

import (
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/agencybot/internal/errors"
)

// CheckCommandAllowed reports whether commandPath may run under allowlist.
// An entry allows its own path and every subcommand below it, so "agency"
// admits "agency quote" while "agency quote" does not admit "agency info".
// An empty allowlist allows everything.
func CheckCommandAllowed(allowlist []string, commandPath string) error {
	if len(allowlist) == 0 {
		return nil
	}
	path := normalize(commandPath)
	for _, allowed := range allowlist {
		entry := normalize(allowed)
		if entry == "" {
			continue
		}
		if path == entry || strings.HasPrefix(path, entry+" ") {
			return nil
		}
	}
	return clierr.New(clierr.CodeBlocked, fmt.Sprintf("command %q is not in the enabled commands", path))
}

func normalize(v string) string {
	return strings.Join(strings.Fields(strings.ToLower(v)), " ")
}
