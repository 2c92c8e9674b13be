// Package scripts resolves Eagle test scripts on disk and generates the
// synthetic bodies the pool harness sends.
package scripts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultDeployDir is where deployed installs keep their test scripts.
const DefaultDeployDir = "/app/scripts/eagle"

// NotFoundError reports a script name that matched none of the probed
// locations. Searched keeps every path that was tried, in probe order.
type NotFoundError struct {
	Name     string
	Searched []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("could not find test script %q (searched: %s)", e.Name, strings.Join(e.Searched, ", "))
}

// Finder resolves script names against the candidate locations.
type Finder struct {
	deployDir string
}

// NewFinder creates a Finder. An empty deployDir falls back to
// DefaultDeployDir.
func NewFinder(deployDir string) *Finder {
	if deployDir == "" {
		deployDir = DefaultDeployDir
	}
	return &Finder{deployDir: deployDir}
}

// Find resolves name to an existing file path. An absolute path that
// exists is taken as-is; otherwise the deployment directory, the
// directory next to the executable, the project root, and finally the
// literal name are probed in order. The first hit wins.
func (f *Finder) Find(name string) (string, error) {
	if filepath.IsAbs(name) {
		if fileExists(name) {
			return name, nil
		}
		return "", &NotFoundError{Name: name, Searched: []string{name}}
	}

	candidates := []string{filepath.Join(f.deployDir, name)}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "..", "scripts", "eagle", name))
	}
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(wd, "scripts", "eagle", name))
	}
	candidates = append(candidates, name)

	for _, candidate := range candidates {
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", &NotFoundError{Name: name, Searched: candidates}
}

// Load resolves name and reads the script body.
func (f *Finder) Load(name string) (string, error) {
	path, err := f.Find(name)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read test script %s: %w", path, err)
	}
	return string(content), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Concurrent returns the synthetic script body for one pool-harness
// call. Each body carries its own script id so interleaved outputs stay
// attributable, sums 1..500 as busywork, and sleeps for delay so
// completion order diverges from submission order.
func Concurrent(scriptID int, delay time.Duration) string {
	return fmt.Sprintf(`
# Concurrent test script %[1]d
set scriptId %[1]d
set startTime [clock milliseconds]

# Simulate some work
set sum 0
for {set i 1} {$i <= 500} {incr i} {
    set sum [expr {$sum + $i}]
}

# Add a small delay if requested
if {%[2]d > 0} {
    after %[2]d
}

# Store result in session
set sessionKey "concurrent_test_$scriptId"
mcp::session set $sessionKey $sum

# Calculate execution time
set endTime [clock milliseconds]
set duration [expr {$endTime - $startTime}]

puts "Script $scriptId completed in ${duration}ms, sum=$sum"
`, scriptID, delay.Milliseconds())
}
