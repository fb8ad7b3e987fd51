package botconfig

import "strings"

// secretMarkers are the key-name fragments that flag an environment
// variable as a secret. Matching is case-insensitive.
var secretMarkers = []string{"SECRET", "KEY", "TOKEN", "PASSWORD", "CREDENTIAL", "PRIVATE"}

// IsSecretKey reports whether an environment variable name looks like it
// carries a secret. Targets that separate secrets from plain variables
// (worker secrets vs manifest vars) use this heuristic.
func IsSecretKey(key string) bool {
	upper := strings.ToUpper(key)
	for _, marker := range secretMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// SplitEnvironment partitions environment variables into secrets and plain
// variables by key-name heuristics. Secrets must never be written to a
// manifest file; they are pushed through the provider's secret mechanism
// one by one.
func SplitEnvironment(env map[string]string) (secrets, vars map[string]string) {
	secrets = make(map[string]string)
	vars = make(map[string]string)
	for k, v := range env {
		if IsSecretKey(k) {
			secrets[k] = v
		} else {
			vars[k] = v
		}
	}
	return secrets, vars
}
