// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package safety

import (
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync/atomic"
)

// Checker is the interface pkg/orchestrator.Dispatcher depends on. Policy
// satisfies it directly; DynamicPolicy satisfies it too, which is what
// lets a hot-reloaded configuration (pkg/config.Watcher) swap the active
// rule set without any caller needing to know which one it holds.
type Checker interface {
	CheckCommand(cmdline string) *Violation
	CheckFileAccess(path string, mode FileMode) *Violation
}

var (
	_ Checker = (*Policy)(nil)
	_ Checker = (*DynamicPolicy)(nil)
)

// Config configures a Policy. It is a plain value type, independent of the
// YAML schema package, the same separation the command-execution tool this
// is grounded on keeps between its security Config and the document it's
// loaded from.
type Config struct {
	Enabled          bool
	CommandAllowlist []string
	CommandDenylist  []string
	ProtectedFiles   []string
	ProtectedPaths   []string
	ProtectedGlobs   []string
}

// builtinDangerousPatterns are checked regardless of configuration, ahead
// of the allowlist, because no legitimate task needs them.
var builtinDangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:\s*&\s*\}\s*;`), // fork bomb
	regexp.MustCompile(`curl[^|]*\|\s*(sudo\s+)?sh\b`),
	regexp.MustCompile(`wget[^|]*\|\s*(sudo\s+)?sh\b`),
	regexp.MustCompile(`chmod\s+0?777\b`),
	regexp.MustCompile(`>\s*/dev/(sd|nvme|hd)[a-z0-9]*\b`), // raw block device writes
}

var sensitiveSystemPaths = []string{
	"/etc/passwd", "/etc/shadow", "/etc/sudoers",
	`c:\windows\system32`, `c:\windows\system`,
}

// Policy evaluates commands and file accesses against a Config and tracks
// statistics. A zero-value Policy (Enabled: false) allows
// everything, matching "disabled: allow" in both decision orders.
type Policy struct {
	cfg Config

	allowlist map[string]bool
	denylist  []string // substrings, already lowercased
	stats     statCounters
}

// NewPolicy builds a Policy from cfg. cfg is copied; later mutation of the
// caller's slices does not affect the Policy.
func NewPolicy(cfg Config) *Policy {
	allow := make(map[string]bool, len(cfg.CommandAllowlist))
	for _, c := range cfg.CommandAllowlist {
		allow[strings.ToLower(c)] = true
	}
	deny := make([]string, len(cfg.CommandDenylist))
	for i, d := range cfg.CommandDenylist {
		deny[i] = strings.ToLower(d)
	}
	return &Policy{cfg: cfg, allowlist: allow, denylist: deny}
}

// CheckCommand implements the command decision order in order: disabled,
// denylist, built-in dangerous patterns, allowlist, default allow.
func (p *Policy) CheckCommand(cmdline string) *Violation {
	p.stats.recordCheck()

	if !p.cfg.Enabled {
		return nil
	}

	normalized := strings.ToLower(strings.TrimSpace(cmdline))
	if normalized == "" {
		return nil
	}

	for _, d := range p.denylist {
		if d != "" && strings.Contains(normalized, d) {
			v := violation(KindDeniedCommand, "remove this command or request an operator override",
				"command contains denied substring %q", d)
			p.stats.recordViolation(v.Kind)
			return v
		}
	}

	for _, pattern := range builtinDangerousPatterns {
		if pattern.MatchString(normalized) {
			v := violation(KindSuspiciousOp, "this command matches a built-in dangerous pattern and cannot be run",
				"command matches dangerous pattern %q", pattern.String())
			p.stats.recordViolation(v.Kind)
			return v
		}
	}
	for _, sensitive := range sensitiveSystemPaths {
		if strings.Contains(normalized, sensitive) {
			v := violation(KindSuspiciousOp, "this command touches a sensitive system path",
				"command references sensitive system path %q", sensitive)
			p.stats.recordViolation(v.Kind)
			return v
		}
	}

	exe := firstToken(normalized)
	if len(p.allowlist) > 0 && !p.allowlist[exe] {
		v := violation(KindDisallowedCommand, "add this executable to the command allowlist",
			"executable %q is not in the command allowlist", exe)
		p.stats.recordViolation(v.Kind)
		return v
	}

	return nil
}

// CommandAllowed is a boolean convenience over CheckCommand.
func (p *Policy) CommandAllowed(cmdline string) bool { return p.CheckCommand(cmdline) == nil }

// FileMode names the access mode CheckFileAccess is evaluating.
type FileMode string

const (
	ModeRead  FileMode = "read"
	ModeWrite FileMode = "write"
)

// CheckFileAccess implements the file-access decision order: disabled,
// suspicious system paths on write, protected files/prefixes, protected
// globs, default allow.
func (p *Policy) CheckFileAccess(path string, mode FileMode) *Violation {
	p.stats.recordCheck()

	if !p.cfg.Enabled {
		return nil
	}

	normalized := normalizePath(path)

	if mode == ModeWrite && isSuspiciousSystemPath(normalized) {
		v := violation(KindSuspiciousOp, "writes to system directories are never permitted",
			"path %q is a protected system location", path)
		p.stats.recordViolation(v.Kind)
		return v
	}

	for _, f := range p.cfg.ProtectedFiles {
		pf := normalizePath(f)
		if normalized == pf || underDir(normalized, pf) {
			v := violation(KindProtectedFile, "request an explicit exception for this file",
				"path %q is a protected file", path)
			p.stats.recordViolation(v.Kind)
			return v
		}
	}
	for _, d := range p.cfg.ProtectedPaths {
		pd := normalizePath(d)
		if underDir(normalized, pd) {
			v := violation(KindProtectedFile, "request an explicit exception for this directory",
				"path %q is under protected directory %q", path, d)
			p.stats.recordViolation(v.Kind)
			return v
		}
	}

	base := filepath.Base(normalized)
	for _, pattern := range p.cfg.ProtectedGlobs {
		if globMatch(pattern, base) || globMatch(pattern, normalized) {
			v := violation(KindProtectedPattern, "rename the target or adjust the protected pattern",
				"path %q matches protected pattern %q", path, pattern)
			p.stats.recordViolation(v.Kind)
			return v
		}
	}

	return nil
}

// FileAccessAllowed is a boolean convenience over CheckFileAccess.
func (p *Policy) FileAccessAllowed(path string, mode FileMode) bool {
	return p.CheckFileAccess(path, mode) == nil
}

// Stats returns a snapshot of accumulated statistics.
func (p *Policy) Stats() Stats { return p.stats.snapshot() }

func firstToken(cmdline string) string {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func normalizePath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := homeDir(); err == nil {
			path = home + strings.TrimPrefix(path, "~")
		}
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if runtime.GOOS == "windows" {
		return strings.ToLower(filepath.ToSlash(path))
	}
	return filepath.Clean(path)
}

func underDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func globMatch(pattern, target string) bool {
	ok, err := filepath.Match(pattern, target)
	return err == nil && ok
}

func isSuspiciousSystemPath(path string) bool {
	lower := strings.ToLower(path)
	for _, sensitive := range sensitiveSystemPaths {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	if runtime.GOOS == "windows" {
		return strings.Contains(lower, `\windows\system32`) || strings.Contains(lower, `\windows\system`)
	}
	return lower == "/etc" || strings.HasPrefix(lower, "/etc/") || lower == "/boot" || strings.HasPrefix(lower, "/boot/")
}

// DynamicPolicy holds an atomically-swappable Policy, so a config reload
// (pkg/config.Watcher) can replace the active command/file rules for every
// in-flight and future check without any caller re-wiring its reference.
// Statistics accumulate against whichever Policy was active at the moment
// of each check, and Stats reports only the active Policy's, so after
// Replace the counts start again from zero.
type DynamicPolicy struct {
	current atomic.Pointer[Policy]
}

// NewDynamicPolicy builds a DynamicPolicy starting from cfg.
func NewDynamicPolicy(cfg Config) *DynamicPolicy {
	d := &DynamicPolicy{}
	d.current.Store(NewPolicy(cfg))
	return d
}

// Replace swaps in a freshly built Policy for cfg. Safe for concurrent use
// with CheckCommand/CheckFileAccess from any number of goroutines.
func (d *DynamicPolicy) Replace(cfg Config) {
	d.current.Store(NewPolicy(cfg))
}

// CheckCommand delegates to the currently active Policy.
func (d *DynamicPolicy) CheckCommand(cmdline string) *Violation {
	return d.current.Load().CheckCommand(cmdline)
}

// CheckFileAccess delegates to the currently active Policy.
func (d *DynamicPolicy) CheckFileAccess(path string, mode FileMode) *Violation {
	return d.current.Load().CheckFileAccess(path, mode)
}

// Stats returns the currently active Policy's accumulated statistics.
func (d *DynamicPolicy) Stats() Stats { return d.current.Load().Stats() }
