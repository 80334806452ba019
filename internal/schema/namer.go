// Package schema holds the tenant schema naming rules and the canonical,
// dependency-ordered set of per-tenant table definitions shared by
// provisioning, data migration and validation.
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/harrissondutra/fitOS-sub014/internal/common"
)

const (
	// Prefix starts every tenant schema name.
	Prefix = "tenant_"

	// MaxIdentifierLength is the Postgres NAMEDATALEN-1 limit in bytes.
	MaxIdentifierLength = 63

	hashSuffixLength = 8
)

// Name maps a tenant id to its schema name: Prefix followed by the lowercased
// id with every byte outside [a-z0-9] replaced by '_' (abc-123 -> tenant_abc_123).
//
// Ids drawn from [a-z0-9-] map one-to-one. Any other id (uppercase, '_', dots,
// non-ASCII), a name longer than MaxIdentifierLength, or a name that already
// ends like a hash suffix gets a short sha256 suffix of the raw id, truncating
// the readable part to stay within the limit. Plain names therefore never end
// in "_" followed by eight hex digits, and no plain id can reproduce a
// suffixed name.
func Name(tenantID string) (string, error) {
	if tenantID == "" {
		return "", fmt.Errorf("schema name for empty tenant id: %w", common.ErrInvalidIdentifier)
	}

	var b strings.Builder
	b.Grow(len(Prefix) + len(tenantID))
	b.WriteString(Prefix)

	lossless := true
	for i := 0; i < len(tenantID); i++ {
		c := tenantID[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == '-':
			b.WriteByte('_')
		case c >= 'A' && c <= 'Z':
			b.WriteByte(c + ('a' - 'A'))
			lossless = false
		default:
			b.WriteByte('_')
			lossless = false
		}
	}

	name := b.String()
	if lossless && len(name) <= MaxIdentifierLength && !hasHashTail(name) {
		return name, nil
	}

	sum := sha256.Sum256([]byte(tenantID))
	suffix := "_" + hex.EncodeToString(sum[:])[:hashSuffixLength]
	if len(name)+len(suffix) > MaxIdentifierLength {
		name = name[:MaxIdentifierLength-len(suffix)]
	}
	return name + suffix, nil
}

// hasHashTail reports whether name ends in '_' and hashSuffixLength lowercase
// hex digits, the shape of a hash suffix.
func hasHashTail(name string) bool {
	if len(name) < len(Prefix)+hashSuffixLength+1 {
		return false
	}
	tail := name[len(name)-hashSuffixLength-1:]
	if tail[0] != '_' {
		return false
	}
	for i := 1; i < len(tail); i++ {
		c := tail[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// ValidateName checks a schema name received at a DDL boundary. Only names
// SchemaNamer could have produced are accepted.
func ValidateName(name string) error {
	if len(name) == 0 || len(name) > MaxIdentifierLength {
		return fmt.Errorf("schema name %q length %d: %w", name, len(name), common.ErrInvalidIdentifier)
	}
	if !strings.HasPrefix(name, Prefix) || len(name) == len(Prefix) {
		return fmt.Errorf("schema name %q must start with %q: %w", name, Prefix, common.ErrInvalidIdentifier)
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_') {
			return fmt.Errorf("schema name %q has invalid character %q: %w", name, c, common.ErrInvalidIdentifier)
		}
	}
	return nil
}
