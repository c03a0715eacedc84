package lxcconf

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConf(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "105.conf")
	if err := os.WriteFile(path, []byte(content), 0640); err != nil {
		t.Fatal(err)
	}
	return path
}

func readConf(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

const baseConf = "arch: amd64\ncores: 2\nhostname: vdsm\nunprivileged: 1\n"

// --- MountEntry / DeviceAllow ---

func TestMountEntry(t *testing.T) {
	got := MountEntry("/dev-105/net/tun", "dev/net/tun")
	want := "lxc.mount.entry: /dev-105/net/tun dev/net/tun none bind,create=file 0 0"
	if got != want {
		t.Errorf("MountEntry = %q, want %q", got, want)
	}
}

func TestDeviceAllow(t *testing.T) {
	got := DeviceAllow(10, 232)
	want := "lxc.cgroup2.devices.allow: c 10:232 rwm"
	if got != want {
		t.Errorf("DeviceAllow = %q, want %q", got, want)
	}
}

// --- ValidateLines ---

func TestValidateLinesAllowed(t *testing.T) {
	lines := []string{
		"lxc.mount.entry: /dev-105/kvm dev/kvm none bind,create=file 0 0",
		"lxc.cgroup2.devices.allow: c 10:232 rwm",
		"",
	}
	if err := ValidateLines(lines); err != nil {
		t.Errorf("ValidateLines = %v, want nil", err)
	}
}

func TestValidateLinesDisallowedKey(t *testing.T) {
	if err := ValidateLines([]string{"lxc.rootfs.path: /bad"}); err == nil {
		t.Error("expected error for disallowed key")
	}
}

func TestValidateLinesNoDelimiter(t *testing.T) {
	if err := ValidateLines([]string{"lxc.mount.entry no delimiter"}); err == nil {
		t.Error("expected error for line without delimiter")
	}
}

// --- EnsureLines ---

func TestEnsureLinesAppendsMissing(t *testing.T) {
	path := writeConf(t, baseConf)
	lines := []string{
		MountEntry("/dev-105/net/tun", "dev/net/tun"),
		MountEntry("/dev-105/kvm", "dev/kvm"),
	}

	appended, err := EnsureLines(path, lines)
	if err != nil {
		t.Fatalf("EnsureLines: %v", err)
	}
	if len(appended) != 2 {
		t.Fatalf("appended %d lines, want 2", len(appended))
	}

	content := readConf(t, path)
	if !strings.HasPrefix(content, baseConf) {
		t.Error("existing content was not preserved")
	}
	for _, line := range lines {
		if !strings.Contains(content, line+"\n") {
			t.Errorf("missing appended line %q", line)
		}
	}
}

func TestEnsureLinesIdempotent(t *testing.T) {
	path := writeConf(t, baseConf)
	lines := []string{
		MountEntry("/dev-105/net/tun", "dev/net/tun"),
		MountEntry("/dev-105/kvm", "dev/kvm"),
		MountEntry("/dev-105/vhost-net", "dev/vhost-net"),
	}

	if _, err := EnsureLines(path, lines); err != nil {
		t.Fatalf("first EnsureLines: %v", err)
	}
	first := readConf(t, path)

	appended, err := EnsureLines(path, lines)
	if err != nil {
		t.Fatalf("second EnsureLines: %v", err)
	}
	if len(appended) != 0 {
		t.Errorf("second run appended %v, want nothing", appended)
	}
	if second := readConf(t, path); second != first {
		t.Errorf("file changed on second run:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

func TestEnsureLinesPartialPresent(t *testing.T) {
	kvm := MountEntry("/dev-105/kvm", "dev/kvm")
	path := writeConf(t, baseConf+kvm+"\n")
	lines := []string{
		MountEntry("/dev-105/net/tun", "dev/net/tun"),
		kvm,
	}

	appended, err := EnsureLines(path, lines)
	if err != nil {
		t.Fatalf("EnsureLines: %v", err)
	}
	if len(appended) != 1 || appended[0] != lines[0] {
		t.Errorf("appended = %v, want only the tun entry", appended)
	}
	if got := strings.Count(readConf(t, path), kvm); got != 1 {
		t.Errorf("kvm entry appears %d times, want 1", got)
	}
}

func TestEnsureLinesNoTrailingNewline(t *testing.T) {
	path := writeConf(t, "arch: amd64\ncores: 2")
	line := MountEntry("/dev-105/kvm", "dev/kvm")

	if _, err := EnsureLines(path, []string{line}); err != nil {
		t.Fatalf("EnsureLines: %v", err)
	}
	content := readConf(t, path)
	if strings.Contains(content, "cores: 2lxc.mount.entry") {
		t.Error("appended line was glued to the last existing line")
	}
	if !strings.HasSuffix(content, line+"\n") {
		t.Errorf("content %q should end with appended line and newline", content)
	}
}

func TestEnsureLinesConflict(t *testing.T) {
	// Same key and fields, different spacing: a conflict, not an append.
	existing := "lxc.mount.entry: /dev-105/kvm  dev/kvm none bind,create=file 0 0"
	path := writeConf(t, baseConf+existing+"\n")

	_, err := EnsureLines(path, []string{MountEntry("/dev-105/kvm", "dev/kvm")})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want *ConflictError", err)
	}
	if conflict.Found != existing {
		t.Errorf("conflict.Found = %q, want %q", conflict.Found, existing)
	}
	if strings.Count(readConf(t, path), "dev/kvm") != 1 {
		t.Error("conflicting line must not be appended")
	}
}

func TestEnsureLinesDisallowedKey(t *testing.T) {
	path := writeConf(t, baseConf)
	if _, err := EnsureLines(path, []string{"lxc.rootfs.path: /bad"}); err == nil {
		t.Fatal("expected allowlist error")
	}
	if readConf(t, path) != baseConf {
		t.Error("file must not change on validation failure")
	}
}

func TestEnsureLinesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "999.conf")
	if _, err := EnsureLines(path, []string{MountEntry("/dev-999/kvm", "dev/kvm")}); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

// --- RemoveLines ---

func TestRemoveLinesUndoesAppend(t *testing.T) {
	path := writeConf(t, baseConf)
	lines := []string{
		MountEntry("/dev-105/net/tun", "dev/net/tun"),
		MountEntry("/dev-105/kvm", "dev/kvm"),
	}

	appended, err := EnsureLines(path, lines)
	if err != nil {
		t.Fatalf("EnsureLines: %v", err)
	}
	if err := RemoveLines(path, appended); err != nil {
		t.Fatalf("RemoveLines: %v", err)
	}
	if got := readConf(t, path); got != baseConf {
		t.Errorf("content after undo = %q, want original %q", got, baseConf)
	}
}

func TestRemoveLinesAbsentLineIgnored(t *testing.T) {
	path := writeConf(t, baseConf)
	if err := RemoveLines(path, []string{MountEntry("/dev-105/kvm", "dev/kvm")}); err != nil {
		t.Fatalf("RemoveLines: %v", err)
	}
	if got := readConf(t, path); got != baseConf {
		t.Errorf("content = %q, want unchanged %q", got, baseConf)
	}
}

func TestRemoveLinesSingleOccurrence(t *testing.T) {
	line := MountEntry("/dev-105/kvm", "dev/kvm")
	path := writeConf(t, baseConf+line+"\n"+line+"\n")

	if err := RemoveLines(path, []string{line}); err != nil {
		t.Fatalf("RemoveLines: %v", err)
	}
	if got := strings.Count(readConf(t, path), line); got != 1 {
		t.Errorf("line appears %d times after removal, want 1", got)
	}
}

// --- HasLine ---

func TestHasLine(t *testing.T) {
	line := MountEntry("/dev-105/kvm", "dev/kvm")
	path := writeConf(t, baseConf+line+"\n")

	ok, err := HasLine(path, line)
	if err != nil {
		t.Fatalf("HasLine: %v", err)
	}
	if !ok {
		t.Error("HasLine = false, want true")
	}

	ok, err = HasLine(path, MountEntry("/dev-105/net/tun", "dev/net/tun"))
	if err != nil {
		t.Fatalf("HasLine: %v", err)
	}
	if ok {
		t.Error("HasLine = true for absent line, want false")
	}
}
