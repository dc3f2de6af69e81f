package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sys/unix"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
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

// CheckOverlayCatalog verifies the overlay directory is readable. The catalog
// is optional, so an unset or missing directory passes.
func CheckOverlayCatalog(path string) Result {
	const name = "Overlay catalog"
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Passed: true, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (empty: does not exist)", path)}
	}
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}

// CheckRedis verifies the dispatch Redis server answers PING.
// It uses a 5-second timeout and a single attempt.
func CheckRedis(ctx context.Context, url string) Result {
	const name = "Redis"
	opts, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url (%v)", err)}
	}
	opts.MaxRetries = -1

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := redis.NewClient(opts)
	defer client.Close()
	if err := client.Ping(checkCtx).Err(); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("unreachable (%v)", err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", opts.Addr)}
}
