// Command smoke probes a running portal instance and verifies the expected
// status codes for a set of endpoints. Intended for post-deploy checks.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

type probe struct {
	Method     string
	Path       string
	WantStatus int
	NeedsAuth  bool
}

var probes = []probe{
	{Method: http.MethodGet, Path: "/health", WantStatus: http.StatusOK},
	{Method: http.MethodGet, Path: "/ready", WantStatus: http.StatusOK},
	{Method: http.MethodGet, Path: "/metrics", WantStatus: http.StatusOK},
	{Method: http.MethodGet, Path: "/api/v1/classes", WantStatus: http.StatusOK, NeedsAuth: true},
	{Method: http.MethodGet, Path: "/api/v1/classes", WantStatus: http.StatusUnauthorized},
}

func main() {
	var (
		base    string
		token   string
		timeout time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "Portal API base URL")
	flag.StringVar(&token, "token", "", "Bearer token for authenticated probes")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	client := &http.Client{Timeout: timeout}
	failures := 0

	for _, p := range probes {
		if p.NeedsAuth && token == "" {
			fmt.Printf("SKIP %-6s %-40s (no token)\n", p.Method, p.Path)
			continue
		}
		status, err := run(client, base, token, p)
		if err != nil {
			fmt.Printf("FAIL %-6s %-40s %v\n", p.Method, p.Path, err)
			failures++
			continue
		}
		if status != p.WantStatus {
			fmt.Printf("FAIL %-6s %-40s got %d, want %d\n", p.Method, p.Path, status, p.WantStatus)
			failures++
			continue
		}
		fmt.Printf("OK   %-6s %-40s %d\n", p.Method, p.Path, status)
	}

	if failures > 0 {
		fmt.Printf("%d probe(s) failed\n", failures)
		os.Exit(1)
	}
}

func run(client *http.Client, base, token string, p probe) (int, error) {
	url := strings.TrimRight(base, "/") + p.Path
	req, err := http.NewRequest(p.Method, url, nil)
	if err != nil {
		return 0, err
	}
	if p.NeedsAuth {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
