package preflight

import (
	"context"
	"fmt"

	"signverse/internal/config"
	"signverse/internal/deps"
)

// Result reports the outcome of a single preflight check. Optional results
// never fail a run.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes the local checks for the given config: directories, free
// space, the database, and external binaries.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Media directory", cfg.Paths.MediaDir),
		CheckDirectoryAccess("Library directory", cfg.Paths.LibraryDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckFreeSpace("Media free space", cfg.Paths.MediaDir, cfg.Render.MinFreeGiB),
		CheckDatabase(ctx, cfg.DatabasePath()),
	}
	for _, status := range deps.CheckBinaries(ctx, deps.Requirements(cfg)) {
		results = append(results, fromStatus(status))
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			out = append(out, r)
		}
	}
	return out
}

func fromStatus(s deps.Status) Result {
	r := Result{Name: s.Name, Passed: s.Available, Optional: s.Optional}
	switch {
	case !s.Available:
		r.Detail = fmt.Sprintf("%s (%s)", s.Detail, s.Description)
	case s.Version != "":
		r.Detail = s.Version
	default:
		r.Detail = s.Command
	}
	return r
}
