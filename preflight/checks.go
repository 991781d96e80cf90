package preflight

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"batchgen/core"
)

// DefaultMinFreeBytes is the free space required in the output directory.
const DefaultMinFreeBytes int64 = 200 * humanize.MiByte

// CheckFileExists reports an error unless path names a regular file.
func CheckFileExists(path string) error {
	if path == "" {
		return errors.New("file path cannot be empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", path)
		}
		return fmt.Errorf("error checking file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", path)
	}
	return nil
}

// ValidateServerURL checks for an http(s) URL with a host.
func ValidateServerURL(serverURL string) error {
	serverURL = strings.TrimSpace(serverURL)
	if serverURL == "" {
		return errors.New("server URL cannot be empty")
	}
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "http" && scheme != "https" {
		return fmt.Errorf("URL must use http or https scheme, got: %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL must include a host")
	}
	return nil
}

// CheckOutputDir creates dir if needed, proves it is writable and that at
// least minFree bytes are available.
func CheckOutputDir(dir string, minFree int64) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create %s: %w", dir, err)
	}
	probe, err := os.CreateTemp(dir, ".write-test-*")
	if err != nil {
		return "", fmt.Errorf("%s is not writable: %w", dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	info, err := GetDiskSpace(dir)
	if err != nil {
		// writable is what matters; free space is advisory on exotic filesystems
		return "Writable (free space unknown)", nil
	}
	if info.Free < minFree {
		return "", &DiskSpaceError{
			Path:      dir,
			Required:  minFree,
			Available: info.Free,
		}
	}
	return fmt.Sprintf("Writable, %s free", humanize.IBytes(uint64(info.Free))), nil
}

// CheckReachable sends a HEAD request to serverURL. Any HTTP response
// counts as reachable.
func CheckReachable(ctx context.Context, client *http.Client, serverURL string) (string, error) {
	if err := ValidateServerURL(serverURL); err != nil {
		return "Invalid URL", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, serverURL, nil)
	if err != nil {
		return "Failed to create request", err
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start).Round(time.Millisecond)
	if err != nil {
		if ctx.Err() != nil {
			return "Connection timed out", fmt.Errorf("%s: %w", serverURL, ctx.Err())
		}
		return "Connection failed", fmt.Errorf("%s: %w", serverURL, err)
	}
	resp.Body.Close()
	return fmt.Sprintf("Reachable (status: %d, latency: %v)", resp.StatusCode, latency), nil
}

// Inputs describes what Checks should verify.
type Inputs struct {
	Config       *core.Config
	PromptsFile  string
	ManifestFile string
	MinFreeBytes int64

	// Authenticate proves the credential works. nil skips the check.
	Authenticate func(ctx context.Context) (string, error)
}

// Checks builds the standard check list for in.
func Checks(in Inputs) []Check {
	cfg := in.Config
	if in.MinFreeBytes <= 0 {
		in.MinFreeBytes = DefaultMinFreeBytes
	}

	checks := []Check{
		{
			Name: "Configuration",
			Run: func(context.Context) (string, error) {
				if err := cfg.Validate(); err != nil {
					return "", err
				}
				return fmt.Sprintf("Backend %s, %d image(s) per prompt", cfg.Backend, cfg.ImagesPerPrompt), nil
			},
		},
	}

	if in.PromptsFile != "" {
		checks = append(checks, Check{
			Name: "Prompts File",
			Run: func(context.Context) (string, error) {
				if err := CheckFileExists(in.PromptsFile); err != nil {
					return "", err
				}
				return filepath.Base(in.PromptsFile), nil
			},
		})
	}
	if in.ManifestFile != "" {
		checks = append(checks, Check{
			Name:     "Reference Manifest",
			Optional: true,
			Run: func(context.Context) (string, error) {
				if err := CheckFileExists(in.ManifestFile); err != nil {
					return "Running without references", err
				}
				return filepath.Base(in.ManifestFile), nil
			},
		})
	}

	checks = append(checks, Check{
		Name: "Output Directory",
		Run: func(context.Context) (string, error) {
			return CheckOutputDir(cfg.OutputDir, in.MinFreeBytes)
		},
	})

	endpoint := cfg.WhiskBaseURL
	if cfg.Backend == core.BackendOpenAI {
		endpoint = cfg.OpenAIBaseURL
	}
	if endpoint != "" {
		checks = append(checks, Check{
			Name:    "Backend Connectivity",
			Network: true,
			Run: func(ctx context.Context) (string, error) {
				return CheckReachable(ctx, core.GetHTTPClient(cfg, cfg.RequestTimeout), endpoint)
			},
		})
	}

	if in.Authenticate != nil {
		checks = append(checks, Check{
			Name:    "Credentials",
			Network: true,
			Run:     in.Authenticate,
		})
	}
	return checks
}
