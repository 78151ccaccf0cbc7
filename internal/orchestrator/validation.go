package orchestrator

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/compozy/mlserver/internal/service"
)

// buildArgKeyRegex matches valid docker build argument names
var buildArgKeyRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseBuildArgs converts KEY=VALUE pairs into a map.
func ParseBuildArgs(pairs []string) (map[string]string, error) {
	args := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid build argument %q (expected KEY=VALUE)", pair)
		}
		if !buildArgKeyRegex.MatchString(key) {
			return nil, fmt.Errorf("invalid build argument name %q", key)
		}
		args[key] = value
	}
	return args, nil
}

// ValidatePushTarget checks the registry and the tag prefix before any push.
func ValidatePushTarget(registry, tagPrefix string) error {
	if err := service.ValidateRegistry(registry); err != nil {
		return err
	}
	if strings.ContainsAny(tagPrefix, " :@/") {
		return fmt.Errorf("invalid tag prefix %q", tagPrefix)
	}
	return nil
}

// sortedKeys is used to report build arguments deterministically.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
