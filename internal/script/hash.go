package script

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// HashTag prefixes content hashes stored in the shared registry mapping so
// that script entries are distinguishable from any other values kept under
// the same key.
const HashTag = "fn:"

// SymbolPrefix prefixes the hash-qualified callable name the host exposes for
// each loaded script.
const SymbolPrefix = "f_"

// HashSource returns the content address of a script source: the lowercase
// hex SHA-256 of its bytes.
func HashSource(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}

// Symbol returns the hash-qualified symbol for a content hash.
func Symbol(hash string) string {
	return SymbolPrefix + hash
}

// TagHash wraps a content hash for registry storage.
func TagHash(hash string) string {
	return HashTag + hash
}

// ParseTaggedHash unwraps a registry value produced by TagHash.
func ParseTaggedHash(v string) (string, error) {
	if !strings.HasPrefix(v, HashTag) {
		return "", fmt.Errorf("registry value %q is not a tagged script hash", v)
	}
	h := strings.TrimPrefix(v, HashTag)
	if h == "" {
		return "", fmt.Errorf("registry value %q has an empty hash", v)
	}
	return h, nil
}
