// Package permission implements the pattern-based permission evaluator (component A):
// a pure, side-effect-free function that decides whether a user's stored perms blob
// authorizes a requested "namespace.verb" permission identifier.
package permission

import "encoding/json"

// SuperAdmin is the global-bypass permission identifier: any user whose perms contain it
// is authorized for every request.
const SuperAdmin = "admin.superadmin"

// matchAll is the wildcard entry that authorizes every request, equivalent to SuperAdmin
// but expressed directly in a perms array rather than as the reserved identifier.
const matchAll = ".*"

// rawEntry decodes one element of a perms JSON array, which is either a plain string
// pattern or an object mapping a namespace key to an array of permission strings.
type rawEntry struct {
	plain   string
	grouped map[string][]string
}

// HasPermission reports whether permsJSON (a JSON array of permission entries) grants the
// requested permission id (form "namespace.verb"). A JSON parse failure fails closed:
// it returns false rather than erroring.
func HasPermission(permsJSON string, id string) bool {
	entries, ok := parsePerms(permsJSON)
	if !ok {
		return false
	}
	for _, e := range entries {
		// admin.superadmin is a global bypass: any entry that would itself grant the
		// reserved superadmin identifier grants every other identifier too.
		if matchEntry(e, SuperAdmin) {
			return true
		}
		if matchEntry(e, id) {
			return true
		}
	}
	return false
}

func parsePerms(permsJSON string) ([]rawEntry, bool) {
	if permsJSON == "" {
		return nil, true
	}
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(permsJSON), &raw); err != nil {
		return nil, false
	}
	entries := make([]rawEntry, 0, len(raw))
	for _, r := range raw {
		var s string
		if err := json.Unmarshal(r, &s); err == nil {
			entries = append(entries, rawEntry{plain: s})
			continue
		}
		var obj map[string][]string
		if err := json.Unmarshal(r, &obj); err == nil {
			entries = append(entries, rawEntry{grouped: obj})
			continue
		}
		// Neither a string nor the expected object shape: the whole array is malformed.
		return nil, false
	}
	return entries, true
}

func matchEntry(e rawEntry, id string) bool {
	if e.plain != "" {
		return matchPattern(e.plain, id)
	}
	for _, patterns := range e.grouped {
		for _, p := range patterns {
			if matchPattern(p, id) {
				return true
			}
		}
	}
	return false
}

// matchPattern implements the wildcard grammar: ".*" matches anything; "*" matches
// exactly one dot-delimited component; otherwise the pattern is compared component-wise
// against id.
func matchPattern(pattern, id string) bool {
	if pattern == matchAll || pattern == id {
		return true
	}

	pComponents := splitComponents(pattern)
	iComponents := splitComponents(id)
	if len(pComponents) != len(iComponents) {
		return false
	}
	for i := range pComponents {
		if pComponents[i] == "*" {
			continue
		}
		if pComponents[i] != iComponents[i] {
			return false
		}
	}
	return true
}

func splitComponents(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
