//go:build e2e

// Package e2e provides end-to-end browser tests for the job tracker web UI.
//
// Test organization:
// - e2e_test.go: TestMain, shared helpers, constants, core dashboard tests
// - jobs_test.go: add, edit and delete of applications through the modals
// - week_test.go: week navigation and theme toggle
//
// The server keeps the selected week, tests changing it go back with the "Heute" button.
package e2e

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	baseURL    = "http://localhost:18090"
	testDBPath = "/tmp/jobtrack-e2e.db"
)

var (
	pw        *playwright.Playwright
	serverCmd *exec.Cmd
)

func TestMain(m *testing.M) {
	// clean old test data
	_ = os.Remove(testDBPath)

	// build test binary
	ctx := context.Background()
	build := exec.CommandContext(ctx, "go", "build", "-o", "/tmp/jobtrack-e2e", "./app")
	build.Dir = ".."
	build.Stdout = os.Stdout
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		fmt.Printf("failed to build: %v\n", err)
		os.Exit(1)
	}

	serverCmd = exec.CommandContext(ctx, "/tmp/jobtrack-e2e",
		"--db="+testDBPath,
		"--web.address=:18090",
		"--web.hostname=e2e-test",
		"--web.rate-limit=100",
	)
	serverCmd.Stdout = os.Stdout
	serverCmd.Stderr = os.Stderr
	if err := serverCmd.Start(); err != nil {
		fmt.Printf("failed to start server: %v\n", err)
		os.Exit(1)
	}

	// wait for server readiness
	if err := waitForServer(baseURL+"/ping", 30*time.Second); err != nil {
		fmt.Printf("server not ready: %v\n", err)
		_ = serverCmd.Process.Kill()
		os.Exit(1)
	}

	// install playwright browsers
	if err := playwright.Install(&playwright.RunOptions{
		Browsers: []string{"chromium"},
	}); err != nil {
		fmt.Printf("failed to install playwright: %v\n", err)
		_ = serverCmd.Process.Kill()
		os.Exit(1)
	}

	var err error
	pw, err = playwright.Run()
	if err != nil {
		fmt.Printf("failed to start playwright: %v\n", err)
		_ = serverCmd.Process.Kill()
		os.Exit(1)
	}

	code := m.Run()

	// cleanup
	_ = pw.Stop()
	_ = serverCmd.Process.Kill()
	_ = os.Remove(testDBPath)
	_ = os.Remove(testDBPath + "-wal")
	_ = os.Remove(testDBPath + "-shm")

	os.Exit(code)
}

func waitForServer(url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("server not ready after %v", timeout)
		default:
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody) // #nosec G107 - test url
			if err != nil {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			resp, err := client.Do(req)
			if err == nil {
				_ = resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func newPage(t *testing.T) playwright.Page {
	t.Helper()
	headless := os.Getenv("E2E_HEADLESS") != "false"
	slowMo := 0.0
	if !headless {
		slowMo = 50 // 50ms slowdown for UI mode
	}
	brow, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
		SlowMo:   playwright.Float(slowMo),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = brow.Close() })

	// isolated context, no theme cookie shared between tests
	ctx, err := brow.NewContext()
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctx.Close() })

	page, err := ctx.NewPage()
	require.NoError(t, err)
	return page
}

// navigateToDashboard opens the dashboard on the current week
func navigateToDashboard(t *testing.T, page playwright.Page) {
	t.Helper()
	_, err := page.Goto(baseURL)
	require.NoError(t, err)
	waitVisible(t, page.Locator(".app-header"))

	// the selected week lives on the server, go back to the current one
	require.NoError(t, page.Locator("#todayBtn").Click())
	waitText(t, page.Locator("#currentWeek"), currentWeekLabel())
}

func waitVisible(t *testing.T, loc playwright.Locator) {
	t.Helper()
	require.NoError(t, loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(5000),
	}))
}

func waitHidden(t *testing.T, loc playwright.Locator) {
	t.Helper()
	require.NoError(t, loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateDetached,
		Timeout: playwright.Float(5000),
	}))
}

// waitText polls the locator until its text is want
func waitText(t *testing.T, loc playwright.Locator, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		text, err := loc.TextContent()
		if err == nil && text == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %q, got %q (err: %v)", want, text, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func currentWeekLabel() string {
	year, week := time.Now().ISOWeek()
	return fmt.Sprintf("KW %d, %d", week, year)
}

// --- dashboard tests ---

func TestDashboard_PageLoads(t *testing.T) {
	page := newPage(t)
	navigateToDashboard(t, page)

	title, err := page.Title()
	require.NoError(t, err)
	assert.Equal(t, "Job Tracker - e2e-test", title)

	visible, err := page.Locator("#addJobBtn").IsVisible()
	require.NoError(t, err)
	assert.True(t, visible, "add button should be visible")

	text, err := page.Locator("#addJobBtn").TextContent()
	require.NoError(t, err)
	assert.Contains(t, text, "Neue Bewerbung")
}

func TestDashboard_ShowsStats(t *testing.T) {
	page := newPage(t)
	navigateToDashboard(t, page)

	for _, id := range []string{"#totalJobs", "#interviewCount", "#offerCount"} {
		visible, err := page.Locator(id).IsVisible()
		require.NoError(t, err)
		assert.True(t, visible, "%s should be visible", id)
	}

	visible, err := page.Locator("#dateRange").IsVisible()
	require.NoError(t, err)
	assert.True(t, visible, "date range should be visible")
}

func TestDashboard_HTMXLoaded(t *testing.T) {
	page := newPage(t)
	navigateToDashboard(t, page)

	result, err := page.Evaluate("() => typeof htmx !== 'undefined'")
	require.NoError(t, err)
	assert.Equal(t, true, result, "htmx should be loaded")
}
