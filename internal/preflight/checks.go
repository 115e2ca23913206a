package preflight

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"signverse/internal/store"
)

// endpointTimeout bounds a single reachability check.
const endpointTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least
// minGiB free. A zero minimum only reports the free space.
func CheckFreeSpace(name, path string, minGiB int) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("statfs %s: %v", path, err)}
	}
	free := st.Bavail * uint64(st.Bsize)
	required := uint64(minGiB) * 1024 * 1024 * 1024
	detail := fmt.Sprintf("%s free", humanize.IBytes(free))
	if free < required {
		return Result{Name: name, Detail: fmt.Sprintf("%s, %s required", detail, humanize.IBytes(required))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckDatabase opens the database, applying the schema when absent, and
// summarizes its contents.
func CheckDatabase(ctx context.Context, path string) Result {
	const name = "Database"
	st, err := store.OpenPath(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	defer st.Close()
	stats, err := st.Stats(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	detail := fmt.Sprintf("%d languages, %d books, %d chapters, %d clips (%d stale), %s",
		stats.Languages, stats.Books, stats.Chapters, stats.Artifacts, stats.OrphanArtifacts,
		humanize.Bytes(uint64(stats.DatabaseBytes)))
	if stats.Languages == 0 {
		return Result{Name: name, Detail: detail + "; import reference data with `signverse books import`"}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckEndpoint verifies that the host behind rawURL answers HTTP. Any
// response below 500 counts as reachable; templates in the path are ignored.
func CheckEndpoint(ctx context.Context, name, rawURL string) Result {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("invalid url %q", rawURL)}
	}
	base := u.Scheme + "://" + u.Host + "/"

	checkCtx, cancel := context.WithTimeout(ctx, endpointTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(checkCtx, http.MethodHead, base, nil)
	if err != nil {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("request failed (%v)", err)}
	}
	client := &http.Client{Timeout: endpointTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("%s unreachable (%v)", u.Host, err)}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("%s answered %d", u.Host, resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Optional: true, Detail: fmt.Sprintf("%s reachable (%d)", u.Host, resp.StatusCode)}
}
