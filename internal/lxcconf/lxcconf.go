// Package lxcconf patches Proxmox LXC container config files with raw
// lxc.* lines. Appends are idempotent: a required line already present is
// left alone, and the set of lines actually appended is reported so a
// failed run can remove exactly what it added.
package lxcconf

import (
	"fmt"
	"os"
	"strings"
)

// allowedKeys are the only raw LXC config keys this tool will append.
var allowedKeys = []string{
	"lxc.mount.entry",
	"lxc.cgroup2.devices.allow",
	"lxc.cgroup.devices.allow",
}

// MountEntry builds the literal bind mount line for a staged device node.
// hostPath is absolute; guestPath is relative to the container rootfs.
func MountEntry(hostPath, guestPath string) string {
	return fmt.Sprintf("lxc.mount.entry: %s %s none bind,create=file 0 0", hostPath, guestPath)
}

// DeviceAllow builds the cgroup2 allow line for a character device.
func DeviceAllow(major, minor uint32) string {
	return fmt.Sprintf("lxc.cgroup2.devices.allow: c %d:%d rwm", major, minor)
}

// ConflictError reports a config line that matches a required line in
// meaning but not in literal text. Appending would create a duplicate
// entry differing only in formatting, so the caller must resolve it.
type ConflictError struct {
	Path     string
	Required string
	Found    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: existing line %q conflicts with required line %q (same key and fields, different text)",
		e.Path, e.Found, e.Required)
}

// ValidateLines checks every line against the key allowlist.
func ValidateLines(lines []string) error {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, _, ok := splitKey(line)
		if !ok {
			return fmt.Errorf("invalid LXC config line: %q - must be key: value", line)
		}
		allowed := false
		for _, k := range allowedKeys {
			if key == k {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("LXC config key %q is not in the allowed list", key)
		}
	}
	return nil
}

// splitKey splits an "key: value" or "key = value" line.
func splitKey(line string) (key, value string, ok bool) {
	for i, c := range line {
		if c == ':' || c == '=' {
			return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
		}
	}
	return "", "", false
}

// normalize reduces a line to its key plus whitespace-collapsed value
// fields, for conflict detection only. The append decision itself is an
// exact literal line match.
func normalize(line string) string {
	key, value, ok := splitKey(line)
	if !ok {
		return strings.TrimSpace(line)
	}
	return key + ": " + strings.Join(strings.Fields(value), " ")
}

// EnsureLines appends each required line not already present in the file,
// verbatim, preserving existing content and order. It returns the lines it
// appended. Running it twice with the same input is a no-op on the second
// run. A line present with equivalent meaning but different literal text is
// a *ConflictError, not an append.
func EnsureLines(path string, required []string) ([]string, error) {
	if err := ValidateLines(required); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	content := string(data)

	existing := strings.Split(content, "\n")
	present := make(map[string]bool, len(existing))
	normalized := make(map[string]string, len(existing))
	for _, line := range existing {
		present[line] = true
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			normalized[normalize(trimmed)] = line
		}
	}

	var missing []string
	for _, line := range required {
		if present[line] {
			continue
		}
		if found, ok := normalized[normalize(line)]; ok {
			return nil, &ConflictError{Path: path, Required: line, Found: found}
		}
		missing = append(missing, line)
	}

	if len(missing) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	sb.WriteString(content)
	if content != "" && !strings.HasSuffix(content, "\n") {
		sb.WriteByte('\n')
	}
	for _, line := range missing {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	if err := writeFilePreserve(path, []byte(sb.String())); err != nil {
		return nil, fmt.Errorf("appending to %s: %w", path, err)
	}

	return missing, nil
}

// RemoveLines removes one occurrence of each given literal line from the
// file. Lines that are not present are ignored. Used to unwind appends.
func RemoveLines(path string, lines []string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	remove := make(map[string]int, len(lines))
	for _, line := range lines {
		remove[line]++
	}

	existing := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	kept := existing[:0]
	for _, line := range existing {
		if remove[line] > 0 {
			remove[line]--
			continue
		}
		kept = append(kept, line)
	}

	out := strings.Join(kept, "\n")
	if len(kept) > 0 {
		out += "\n"
	}

	if err := writeFilePreserve(path, []byte(out)); err != nil {
		return fmt.Errorf("rewriting %s: %w", path, err)
	}
	return nil
}

// HasLine reports whether the file contains the exact literal line.
func HasLine(path, line string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	for _, l := range strings.Split(string(data), "\n") {
		if l == line {
			return true, nil
		}
	}
	return false, nil
}

// writeFilePreserve writes the file keeping its existing mode.
func writeFilePreserve(path string, data []byte) error {
	mode := os.FileMode(0640)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	return os.WriteFile(path, data, mode)
}
