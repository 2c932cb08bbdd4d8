package cmdconfig

import (
	"fmt"
	"reflect"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
	"github.com/jdziat/durable-cmd-tracker/pkg/security"
)

// Expand validates cmd and turns it into one job config per affected path,
// in path order.
func Expand(cmd core.CmdConfig) ([]core.JobConfig, error) {
	paths := cmd.AffectedPaths()
	if err := ValidatePaths(paths); err != nil {
		return nil, fmt.Errorf("expand %s: %w", cmd.Name(), err)
	}
	if val, ok := cmd.(validator); ok {
		if err := val.Validate(); err != nil {
			return nil, fmt.Errorf("expand %s: %w", cmd.Name(), err)
		}
	}

	configs := make([]core.JobConfig, 0, len(paths))
	for _, p := range paths {
		jc, err := cmd.JobConfigFor(p)
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", cmd.Name(), err)
		}
		configs = append(configs, jc)
	}
	return configs, nil
}

// ValidatePaths requires a non-empty list of valid, distinct paths.
func ValidatePaths(paths []string) error {
	if len(paths) == 0 {
		return core.ErrNoAffectedPaths
	}
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if err := security.ValidatePath(p); err != nil {
			return fmt.Errorf("%w: %q", err, p)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: %s", core.ErrDuplicatePath, p)
		}
		seen[p] = struct{}{}
	}
	return nil
}

// Equal reports whether two commands are the same variant with the same
// field values.
func Equal(a, b core.CmdConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Name() == b.Name() && reflect.DeepEqual(a, b)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
