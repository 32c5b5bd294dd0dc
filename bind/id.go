package bind

import (
	"strings"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/stackplan/compliance"
	"github.com/GoCodeAlone/stackplan/manifest"
)

// bindingNamespace is the fixed UUID namespace for binding identifiers.
// Changing it would invalidate every previously issued identifier, so it
// never changes.
var bindingNamespace = uuid.MustParse("5d9c41e6-8a3f-4be2-9f10-7c2a6c0d8f34")

// BindingID computes the deterministic identifier for a binding context.
// Identical inputs always yield the identical identifier; changing any
// single input changes it. The identifier is a name-based (SHA-1) UUID
// over the unit-separated identity tuple.
func BindingID(source, target, capabilityName string, access manifest.AccessLevel, framework compliance.Framework, environment string) string {
	name := strings.Join([]string{
		source,
		target,
		capabilityName,
		string(access),
		string(framework),
		environment,
	}, "\x1f")
	return uuid.NewSHA1(bindingNamespace, []byte(name)).String()
}
