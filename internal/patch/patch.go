// Package patch applies named, anchored text patches to third-party
// scripts. Unlike a blind sed substitution, a missing anchor is a distinct
// error instead of a silent no-op, so upstream drift is caught before an
// unpatched script ships into an image build.
package patch

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrAnchorNotFound is the sentinel wrapped by every *AnchorError.
var ErrAnchorNotFound = errors.New("anchor not found")

// Patch replaces the first occurrence of Anchor with Replacement.
type Patch struct {
	Name        string
	Anchor      string
	Replacement string
}

// Set is a named group of patches against one file. WantSHA256, when set,
// is the hex digest of the pristine upstream file the set was written
// against, used to detect drift before anchors are even tried.
type Set struct {
	Name       string
	File       string // path relative to the project checkout
	WantSHA256 string
	Patches    []Patch
}

// AnchorError reports a patch whose anchor text is absent from the target.
type AnchorError struct {
	Set   string
	Patch string
	File  string
}

func (e *AnchorError) Error() string {
	return fmt.Sprintf("patch set %s: patch %s: anchor not found in %s (upstream text changed?)",
		e.Set, e.Patch, e.File)
}

func (e *AnchorError) Unwrap() error { return ErrAnchorNotFound }

// ChecksumError reports a pristine file that does not match the digest the
// patch set was written against.
type ChecksumError struct {
	Set  string
	File string
	Want string
	Got  string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("patch set %s: %s has sha256 %s, patches were written against %s",
		e.Set, e.File, e.Got, e.Want)
}

// Result lists which patches of a set were applied and which were already
// in place from a previous run.
type Result struct {
	Applied        []string
	AlreadyApplied []string
}

// VerifyChecksum checks content against the set's expected pristine
// digest. Content that already carries any of the set's replacements is
// accepted: a re-run patches nothing but must not be reported as drift.
func (s *Set) VerifyChecksum(content string) error {
	if s.WantSHA256 == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(content))
	got := hex.EncodeToString(sum[:])
	if got == s.WantSHA256 {
		return nil
	}
	for _, p := range s.Patches {
		if strings.Contains(content, p.Replacement) {
			return nil
		}
	}
	return &ChecksumError{Set: s.Name, File: s.File, Want: s.WantSHA256, Got: got}
}

// Apply runs every patch of the set against content and returns the
// patched text. A patch whose replacement is already present is counted as
// AlreadyApplied; a patch whose anchor is missing aborts with an
// *AnchorError and the original content.
func (s *Set) Apply(content string) (string, *Result, error) {
	res := &Result{}
	out := content
	for _, p := range s.Patches {
		if strings.Contains(out, p.Replacement) {
			res.AlreadyApplied = append(res.AlreadyApplied, p.Name)
			continue
		}
		if !strings.Contains(out, p.Anchor) {
			return content, nil, &AnchorError{Set: s.Name, Patch: p.Name, File: s.File}
		}
		out = strings.Replace(out, p.Anchor, p.Replacement, 1)
		res.Applied = append(res.Applied, p.Name)
	}
	return out, res, nil
}
