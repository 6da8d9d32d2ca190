package script

import (
	"fmt"
	"regexp"
)

var namePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)*$`)

// ValidateName checks a dotted script name: one or more lowercase identifier
// segments separated by single dots.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("script name is empty")
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid script name %q: want lowercase identifier segments separated by dots", name)
	}
	return nil
}
