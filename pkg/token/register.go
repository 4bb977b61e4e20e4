package token

import "sync"

// Dynamic tokens let dialects extend the vocabulary without touching the
// builtin constants. IDs are handed out above maxBuiltin. Registration
// happens in dialect init() functions; lookups happen on every identifier
// the lexer reads, so the maps are guarded by a RWMutex.
var (
	dynMu       sync.RWMutex
	nextDynamic = maxBuiltin
	dynNames    = make(map[Type]string)
	dynKeywords = make(map[string]Type)
)

// Register allocates a token type for a dialect extension keyword or
// operator. Registering the same name twice returns the original type.
func Register(name string) Type {
	dynMu.Lock()
	defer dynMu.Unlock()
	if t, ok := dynKeywords[name]; ok {
		return t
	}
	nextDynamic++
	t := nextDynamic
	dynNames[t] = name
	dynKeywords[name] = t
	return t
}

// LookupDynamic returns the token type registered under name, if any.
// Names are matched exactly; keyword names are registered uppercase and
// looked up by the lexer after case folding.
func LookupDynamic(name string) (Type, bool) {
	dynMu.RLock()
	defer dynMu.RUnlock()
	t, ok := dynKeywords[name]
	return t, ok
}

// IsDynamic reports whether t came from Register rather than the builtins.
func IsDynamic(t Type) bool {
	return t > maxBuiltin
}

func dynamicName(t Type) (string, bool) {
	dynMu.RLock()
	defer dynMu.RUnlock()
	name, ok := dynNames[t]
	return name, ok
}
