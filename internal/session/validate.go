package session

import (
	"fmt"
	"regexp"
)

var nameRe = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName rejects profile names that would misbehave as directory
// names: empty, too long, uppercase, or containing path separators.
func ValidateName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("invalid profile name %q: must match %s", name, nameRe)
	}
	return nil
}
