package version

import "testing"

func TestString(t *testing.T) {
	Version, GitSHA, BuildTime = "1.2.0", "abc1234", "2026-10-01T12:00:00Z"
	t.Cleanup(func() { Version, GitSHA, BuildTime = "dev", "unknown", "unknown" })

	want := "pendulum 1.2.0 (git abc1234, built 2026-10-01T12:00:00Z)"
	if got := String("pendulum"); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
