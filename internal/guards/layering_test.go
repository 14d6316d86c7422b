package guards

import (
	"path/filepath"
	"strings"
	"testing"
)

// TestLayering enforces the dependency direction
// cli -> services -> interceptors -> components -> platform.
func TestLayering(t *testing.T) {
	rules := []struct {
		dir       string
		forbidden []string
	}{
		{"internal/platform", []string{"/internal/services", "/internal/interceptors", "/internal/cli"}},
		{"internal/components", []string{"/internal/services", "/internal/interceptors", "/internal/cli"}},
		{"internal/interceptors", []string{"/internal/services", "/internal/cli"}},
		{"internal/services", []string{"/internal/cli"}},
	}

	root := findRepoRoot(t)
	var violations []string
	for _, rule := range rules {
		walkSources(t, filepath.Join(root, rule.dir), func(path, content string) {
			for i, line := range strings.Split(content, "\n") {
				trimmed := strings.TrimSpace(line)
				for _, f := range rule.forbidden {
					if strings.Contains(trimmed, `"`+modulePath+f) {
						violations = append(violations, location(root, path, i+1)+": "+trimmed)
					}
				}
			}
		})
	}
	if len(violations) > 0 {
		t.Fatalf("imports against the layering direction:\n%s", strings.Join(violations, "\n"))
	}
}

// TestOfflineIsIndependentOfDomain keeps the offline worker free of family
// and agenda code so it can front any web client.
func TestOfflineIsIndependentOfDomain(t *testing.T) {
	root := findRepoRoot(t)
	var violations []string
	walkSources(t, filepath.Join(root, "internal", "components", "offline"), func(path, content string) {
		for _, pkg := range []string{"/internal/components/family", "/internal/components/agenda", "/internal/platform/store"} {
			if strings.Contains(content, `"`+modulePath+pkg) {
				violations = append(violations, path+" imports "+pkg)
			}
		}
	})
	if len(violations) > 0 {
		t.Fatalf("offline component depends on domain packages:\n%s", strings.Join(violations, "\n"))
	}
}
