package deps

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"signverse/internal/config"
)

// Requirement defines an external binary signverse relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// Filter, when set, must appear in `<command> -filters` output.
	Filter string
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Version     string
	Detail      string
}

// Requirements lists the binaries the configuration points at.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.Render.FFmpegBinary,
			Description: "Required for cutting and joining clips",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Render.FFprobeBinary,
			Description: "Required for stream inspection and the chapter probe tier",
		},
		{
			Name:        "drawtext",
			Command:     cfg.Render.FFmpegBinary,
			Description: "FFmpeg filter used for citation overlays",
			Optional:    true,
			Filter:      "drawtext",
		},
	}
}

// versionTimeout bounds each `-version` call.
const versionTimeout = 10 * time.Second

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(ctx context.Context, requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		results = append(results, check(ctx, req))
	}
	return results
}

func check(ctx context.Context, req Requirement) Status {
	cmd := strings.TrimSpace(req.Command)
	status := Status{
		Name:        req.Name,
		Command:     cmd,
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
	if cmd == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(cmd)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", cmd)
		return status
	}
	status.Command = path

	if req.Filter != "" {
		ok, err := hasFilter(ctx, path, req.Filter)
		switch {
		case err != nil:
			status.Detail = fmt.Sprintf("list filters: %v", err)
		case !ok:
			status.Detail = fmt.Sprintf("filter %q not compiled in", req.Filter)
		default:
			status.Available = true
		}
		return status
	}

	status.Available = true
	status.Version = version(ctx, path)
	return status
}

// version returns the first line of `<binary> -version`, or "" when the
// binary does not answer.
func version(ctx context.Context, binary string) string {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, binary, "-version").Output() //nolint:gosec
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(line)
}

func hasFilter(ctx context.Context, binary, filter string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, binary, "-hide_banner", "-filters").Output() //nolint:gosec
	if err != nil {
		return false, err
	}
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == filter {
			return true, nil
		}
	}
	return false, nil
}
