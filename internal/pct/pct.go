// Package pct wraps the Proxmox pct command for container lifecycle and
// guest execution. All commands use exec.Command with explicit argv — no
// shell strings. The tool runs as root on the PVE host, so pct is invoked
// directly.
package pct

import (
	"bufio"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const pctBin = "/usr/sbin/pct"

// Command execution hooks — override in tests to mock system commands.
var (
	// pctRun executes a pct subcommand, returns trimmed combined output.
	pctRun = func(args ...string) (string, error) {
		cmd := exec.Command(pctBin, args...)
		out, err := cmd.CombinedOutput()
		return strings.TrimSpace(string(out)), err
	}

	// pctExecInCT runs a command inside a container via pct exec.
	pctExecInCT = func(ctid int, command []string) (*ExecResult, error) {
		args := append([]string{"exec", strconv.Itoa(ctid), "--"}, command...)
		cmd := exec.Command(pctBin, args...)
		out, err := cmd.CombinedOutput()

		result := &ExecResult{
			Output:   string(out),
			ExitCode: 0,
		}

		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				result.ExitCode = exitErr.ExitCode()
			} else {
				return nil, fmt.Errorf("pct exec %d: %w", ctid, err)
			}
		}

		return result, nil
	}
)

// ExecResult holds the output of a pct exec command.
type ExecResult struct {
	Output   string
	ExitCode int
}

// Container run states as reported by pct status.
const (
	StateRunning = "running"
	StateStopped = "stopped"
)

// Status returns the run state of a container, parsed from
// "status: <state>" output.
func Status(ctid int) (string, error) {
	out, err := pctRun("status", strconv.Itoa(ctid))
	if err != nil {
		return "", fmt.Errorf("pct status %d: %s: %w", ctid, out, err)
	}
	state := strings.TrimSpace(strings.TrimPrefix(out, "status:"))
	switch state {
	case StateRunning, StateStopped:
		return state, nil
	}
	return "", fmt.Errorf("pct status %d: unexpected output %q", ctid, out)
}

// Stop stops a container. Single attempt; a non-zero exit is an error.
func Stop(ctid int) error {
	out, err := pctRun("stop", strconv.Itoa(ctid))
	if err != nil {
		return fmt.Errorf("pct stop %d: %s: %w", ctid, out, err)
	}
	return nil
}

// Start starts a container. Single attempt; a non-zero exit is an error.
func Start(ctid int) error {
	out, err := pctRun("start", strconv.Itoa(ctid))
	if err != nil {
		return fmt.Errorf("pct start %d: %s: %w", ctid, out, err)
	}
	return nil
}

// Exec runs a command inside a container via pct exec.
func Exec(ctid int, command []string) (*ExecResult, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return pctExecInCT(ctid, command)
}

// ExecStream runs a command inside a container and calls onLine for each
// line of output as it arrives, enabling real-time log feedback.
func ExecStream(ctid int, command []string, onLine func(line string)) (*ExecResult, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return execStreamInCT(ctid, command, onLine)
}

// execStreamInCT is a hook for tests.
var execStreamInCT = func(ctid int, command []string, onLine func(line string)) (*ExecResult, error) {
	args := append([]string{"exec", strconv.Itoa(ctid), "--"}, command...)
	cmd := exec.Command(pctBin, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pct exec stream %d: stdout pipe: %w", ctid, err)
	}
	cmd.Stderr = cmd.Stdout // merge stderr into stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("pct exec stream %d: start: %w", ctid, err)
	}

	scanner := bufio.NewScanner(stdout)
	var output strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		output.WriteString(line)
		output.WriteByte('\n')
		if onLine != nil {
			onLine(line)
		}
	}

	result := &ExecResult{
		Output:   output.String(),
		ExitCode: 0,
	}

	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("pct exec stream %d: %w", ctid, err)
		}
	}

	return result, nil
}

// BuildEnvCommand prefixes a command with env assignments so guest-side
// environment is explicit rather than inherited ambient state.
func BuildEnvCommand(command []string, env map[string]string) []string {
	if len(env) == 0 {
		return command
	}
	envParts := make([]string, 0, len(env))
	for k, v := range env {
		envParts = append(envParts, fmt.Sprintf("%s=%s", k, v))
	}
	return append(append([]string{"env"}, envParts...), command...)
}

// Push copies a file from the host into the container.
func Push(ctid int, src, dst string, perms string) error {
	args := []string{"push", strconv.Itoa(ctid), src, dst}
	if perms != "" {
		args = append(args, "--perms", perms)
	}
	out, err := pctRun(args...)
	if err != nil {
		return fmt.Errorf("pct push %d %s %s: %s: %w", ctid, src, dst, out, err)
	}
	return nil
}

// ReadFile returns the content of a file inside the container.
func ReadFile(ctid int, path string) (string, error) {
	result, err := Exec(ctid, []string{"cat", path})
	if err != nil {
		return "", err
	}
	if result.ExitCode != 0 {
		return "", fmt.Errorf("reading %s in container %d: exit %d: %s",
			path, ctid, result.ExitCode, strings.TrimSpace(result.Output))
	}
	return result.Output, nil
}
