package version

import "testing"

func TestString(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = oldVersion, oldCommit })

	Version = "1.2.0"
	GitCommit = "unknown"
	if got := String(); got != "1.2.0" {
		t.Errorf("String() = %q", got)
	}

	GitCommit = "0123456789abcdef"
	if got := String(); got != "1.2.0 (0123456)" {
		t.Errorf("String() = %q", got)
	}
	if got := UserAgent(); got != "watchnode/1.2.0" {
		t.Errorf("UserAgent() = %q", got)
	}
}
