package action

import (
	"errors"

	"github.com/hupe1980/agentgraph/core"
)

func isNotFound(err error) bool { return errors.Is(err, core.ErrNotFound) }
