package attempt

import (
	"fmt"
	"strings"

	"github.com/jdziat/durable-cmd-tracker/pkg/core"
)

// ParseTarget extracts the target embedded in a task description: the text
// between the first core.TargetKey and the following core.TargetDelimiter.
func ParseTarget(desc string) (string, error) {
	i := strings.Index(desc, core.TargetKey)
	if i < 0 {
		return "", fmt.Errorf("%w: missing %q", core.ErrMalformedDescription, core.TargetKey)
	}
	rest := desc[i+len(core.TargetKey):]
	j := strings.Index(rest, core.TargetDelimiter)
	if j < 0 {
		return "", fmt.Errorf("%w: unterminated target", core.ErrMalformedDescription)
	}
	if j == 0 {
		return "", fmt.Errorf("%w: empty target", core.ErrMalformedDescription)
	}
	return rest[:j], nil
}
