package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })

	Version = "v1.2.3"
	s := String()
	if !strings.HasPrefix(s, "fundus v1.2.3 (") {
		t.Errorf("String() = %q", s)
	}
	if !strings.Contains(s, GitSHA) {
		t.Errorf("String() = %q, missing sha", s)
	}
}
