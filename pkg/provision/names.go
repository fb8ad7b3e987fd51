package provision

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// OwnerTag is the ownership label attached to every resource this system
// creates.
const OwnerTag = "clawster"

// OwnerTagKey is the tag/label key carrying OwnerTag.
const OwnerTagKey = "managedBy"

// maxNameLength is the common provider limit for resource names.
const maxNameLength = 63

// assignmentNamespace seeds deterministic assignment IDs. Fixed forever:
// changing it would re-derive every assignment identity.
var assignmentNamespace = uuid.MustParse("8d9f5b1e-42c7-4a52-9d3a-6f0e2b7c91a4")

// SanitizeName converts an arbitrary profile name into a provider-safe
// resource name: lowercase, alphanumerics and hyphens only, starts with a
// letter, at most 63 characters. The mapping is pure, so the same input
// always yields the same cloud resource identity.
func SanitizeName(name string) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" {
		s = "x"
	}
	if s[0] < 'a' || s[0] > 'z' {
		s = "a" + s
	}
	if len(s) > maxNameLength {
		s = strings.TrimRight(s[:maxNameLength], "-")
	}
	return s
}

// ShortHash derives a 6-hex-character hash of the joined inputs. Used for
// resource-group-scoped shared names where provider length and charset
// limits rule out the raw inputs but the name must stay collision-resistant
// and stable across re-instantiation.
func ShortHash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])[:6]
}

// DeterministicID derives a stable UUID from the given inputs. Role
// assignments use this so two concurrent or repeated assignment attempts
// always target the same logical object; the provider resolves the second
// attempt as a conflict rather than creating a duplicate grant.
func DeterministicID(parts ...string) string {
	return uuid.NewSHA1(assignmentNamespace, []byte(strings.Join(parts, ":"))).String()
}
