package executors

import (
	"fmt"
	"log/slog"
)

// Executor kinds accepted by New
const (
	KindSlurm  = "slurm"
	KindLocal  = "local"
	KindDryRun = "dryrun"
)

// New creates the executor for kind
func New(kind string, cfg SlurmConfig, logger *slog.Logger) (Executor, error) {
	switch kind {
	case KindSlurm:
		return NewSlurm(cfg, nil, logger), nil
	case KindLocal:
		return NewLocal(nil, logger), nil
	case KindDryRun, "":
		return NewDryRun(logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExecutor, kind)
	}
}
