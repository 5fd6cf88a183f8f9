package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-videoencoder/internal/types"
	"github.com/oszuidwest/zwfm-videoencoder/internal/util"
	"golang.org/x/mod/semver"
)

const (
	githubAPIBase        = "https://api.github.com"
	versionCheckInterval = 24 * time.Hour
	versionCheckDelay    = 30 * time.Second // before the first check
	versionCheckTimeout  = 30 * time.Second
	versionMaxRetries    = 3
	versionRetryDelay    = 1 * time.Minute
)

// VersionChecker periodically checks GitHub for new releases.
type VersionChecker struct {
	repo    string
	baseURL string
	client  *http.Client

	mu     sync.RWMutex
	latest string
	etag   string
}

// NewVersionChecker creates a version checker for repo (owner/name).
// An empty repo disables the check.
func NewVersionChecker(repo string) *VersionChecker {
	return &VersionChecker{
		repo:    repo,
		baseURL: githubAPIBase,
		client:  http.DefaultClient,
	}
}

// Run checks for updates until ctx is canceled.
func (vc *VersionChecker) Run(ctx context.Context) {
	if vc.repo == "" {
		slog.Debug("update check disabled")
		return
	}

	if !sleepCtx(ctx, versionCheckDelay) {
		return
	}
	vc.checkWithRetry(ctx)

	ticker := time.NewTicker(versionCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			vc.checkWithRetry(ctx)
		}
	}
}

// checkWithRetry attempts the version check with retries on failure.
func (vc *VersionChecker) checkWithRetry(ctx context.Context) {
	for attempt := range versionMaxRetries {
		if vc.check(ctx) {
			return
		}
		if attempt < versionMaxRetries-1 && !sleepCtx(ctx, versionRetryDelay) {
			return
		}
	}
	slog.Warn("update check failed", "repo", vc.repo, "attempts", versionMaxRetries)
}

// githubRelease represents the GitHub API response for a release.
type githubRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// check fetches the latest release from GitHub. Returns true when no retry
// is needed.
func (vc *VersionChecker) check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, versionCheckTimeout)
	defer cancel()

	url := vc.baseURL + "/repos/" + vc.repo + "/releases/latest"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "zwfm-videoencoder/"+Version)

	vc.mu.RLock()
	etag := vc.etag
	vc.mu.RUnlock()
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := vc.client.Do(req)
	if err != nil {
		slog.Debug("update check request failed", "error", err)
		return false
	}
	defer util.SafeCloseFunc(resp.Body, "release response body")()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotModified, http.StatusNotFound:
		return true
	case http.StatusForbidden, http.StatusTooManyRequests:
		return false
	default:
		// Retry server errors only.
		return resp.StatusCode < 500
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return false
	}

	if release.Draft || release.Prerelease {
		return true
	}
	if release.TagName == "" {
		return false
	}

	vc.mu.Lock()
	vc.latest = normalizeVersion(release.TagName)
	if newEtag := resp.Header.Get("ETag"); newEtag != "" {
		vc.etag = newEtag
	}
	vc.mu.Unlock()

	slog.Debug("update check complete", "latest", release.TagName)
	return true
}

// GetInfo returns the current version info for the frontend.
func (vc *VersionChecker) GetInfo() types.VersionInfo {
	vc.mu.RLock()
	defer vc.mu.RUnlock()

	current := normalizeVersion(Version)
	info := types.VersionInfo{
		Current:   current,
		Latest:    vc.latest,
		Commit:    Commit,
		BuildTime: util.FormatHumanTime(BuildTime),
	}

	if vc.latest != "" && current != "dev" && current != "unknown" {
		info.UpdateAvail = isNewerVersion(vc.latest, current)
	}

	return info
}

// sleepCtx waits for d and reports false if ctx was canceled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// normalizeVersion removes 'v' prefix and trims whitespace.
func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// canonicalVersion ensures a version string is in semver canonical form (v prefix).
func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// isNewerVersion reports whether latest is a newer semver than current.
func isNewerVersion(latest, current string) bool {
	return semver.Compare(canonicalVersion(latest), canonicalVersion(current)) > 0
}
