package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/weftlabs/weft/internal/script"
)

// Ext is the script file extension.
const Ext = ".star"

// NameFromPath derives a script's dotted name from its path relative to the
// scripts root: directory separators become dots and the extension is
// dropped. A frontmatter name overrides the derived one.
func NameFromPath(relPath string) (string, error) {
	p := strings.TrimSuffix(filepath.ToSlash(relPath), Ext)
	p = strings.Trim(p, "/")
	name := strings.ReplaceAll(p, "/", ".")
	if err := script.ValidateName(name); err != nil {
		return "", fmt.Errorf("cannot derive script name from path %q: %w", relPath, err)
	}
	return name, nil
}
