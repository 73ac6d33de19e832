package testsupport

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// WriteFile writes a regular file with the given permission bits, creating
// parent directories. Useful to occupy a pipe path.
func WriteFile(t testing.TB, path string, data []byte, mode os.FileMode) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := os.Chmod(path, mode); err != nil {
		t.Fatalf("chmod %s: %v", path, err)
	}
}

// WaitForPath polls until path exists (or stops existing when exists is
// false) and fails the test after timeout.
func WaitForPath(t testing.TB, path string, exists bool, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		_, err := os.Lstat(path)
		present := err == nil
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("stat %s: %v", path, err)
		}
		if present == exists {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s (exists=%v)", path, exists)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
