// Package sshconfig reads OpenSSH client config files far enough to explain
// which connection settings ssh will fill in for a host when the inventory
// leaves them unset.
//
// Only HostName, User, Port and IdentityFile are resolved. Include directives
// are followed (with cycle detection and a depth bound); Match blocks are
// skipped with a warning because evaluating them needs ssh itself.
package sshconfig

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/treykane/ansible-ssh/internal/util"
)

// Settings are the resolved values for one host. Each field is empty when no
// block set it.
type Settings struct {
	HostName     string
	User         string
	Port         string
	IdentityFile string
	// Sources maps a lower-case keyword to the file that supplied it.
	Sources map[string]string
}

// Config is a parsed ssh config, including included files.
type Config struct {
	blocks   []rawBlock
	Warnings []string
}

type entry struct {
	key   string
	value string
}

type rawBlock struct {
	patterns []string
	// guards are the patterns of enclosing Host blocks when this block came
	// from an Include; each must match too.
	guards  [][]string
	entries []entry
	source  string
	skip    bool
}

func (b rawBlock) applies(host string) bool {
	if b.skip || !matchesAny(host, b.patterns) {
		return false
	}
	for _, g := range b.guards {
		if !matchesAny(host, g) {
			return false
		}
	}
	return true
}

var keywords = map[string]bool{
	"hostname":     true,
	"user":         true,
	"port":         true,
	"identityfile": true,
}

// DefaultPath returns ~/.ssh/config.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".ssh", "config"), nil
}

// ParseDefault parses ~/.ssh/config.
func ParseDefault() (Config, error) {
	p, err := DefaultPath()
	if err != nil {
		return Config{}, err
	}
	return ParseFile(p)
}

// ParseFile parses a single root SSH config and expands Include directives.
// Relative Include paths resolve against the root file's directory at every
// nesting level, as OpenSSH resolves them against ~/.ssh for the user config.
// A missing root file yields an empty config and a warning.
func ParseFile(p string) (Config, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return Config{}, err
	}
	seen := map[string]bool{}
	blocks, warnings, err := parseRecursive(abs, filepath.Dir(abs), seen, 0)
	if err != nil {
		return Config{}, err
	}
	return Config{blocks: blocks, Warnings: warnings}, nil
}

// Lookup resolves settings for host. As in OpenSSH, the first value obtained
// for a keyword wins.
func (c Config) Lookup(host string) Settings {
	s := Settings{Sources: map[string]string{}}
	for _, b := range c.blocks {
		if !b.applies(host) {
			continue
		}
		for _, e := range b.entries {
			if _, done := s.Sources[e.key]; done {
				continue
			}
			switch e.key {
			case "hostname":
				s.HostName = strings.ReplaceAll(e.value, "%h", host)
			case "user":
				s.User = e.value
			case "port":
				s.Port = e.value
			case "identityfile":
				s.IdentityFile = e.value
			default:
				continue
			}
			s.Sources[e.key] = b.source
		}
	}
	return s
}

func parseRecursive(p, baseDir string, seen map[string]bool, depth int) ([]rawBlock, []string, error) {
	if depth > util.MaxIncludeDepth {
		return nil, nil, fmt.Errorf("include depth exceeded at %s", p)
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, nil, err
	}
	if seen[abs] {
		return nil, []string{fmt.Sprintf("include cycle skipped: %s", abs)}, nil
	}
	seen[abs] = true

	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, []string{fmt.Sprintf("config file not found: %s", abs)}, nil
		}
		return nil, nil, fmt.Errorf("open %s: %w", abs, err)
	}
	defer f.Close()

	var (
		blocks   []rawBlock
		warnings []string
		current  = rawBlock{patterns: []string{"*"}, source: abs}
	)
	flush := func() {
		if len(current.entries) > 0 || !isWildcardAll(current.patterns) {
			blocks = append(blocks, current)
		}
	}

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = stripInlineComment(line)
		if line == "" {
			continue
		}

		key, value, ok := splitDirective(line)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s:%d invalid directive", abs, lineNo))
			continue
		}
		lowerKey := strings.ToLower(key)

		switch lowerKey {
		case "include":
			// Included blocks are spliced in place, between the current
			// block and whatever follows.
			flush()
			enclosing := current
			current = rawBlock{patterns: enclosing.patterns, source: abs, skip: enclosing.skip}
			for _, pattern := range strings.Fields(value) {
				incPattern := expandHome(pattern)
				if !filepath.IsAbs(incPattern) {
					incPattern = filepath.Join(baseDir, incPattern)
				}
				matches, globErr := filepath.Glob(incPattern)
				if globErr != nil {
					warnings = append(warnings, fmt.Sprintf("%s:%d bad include pattern %q", abs, lineNo, pattern))
					continue
				}
				if len(matches) == 0 {
					warnings = append(warnings, fmt.Sprintf("%s:%d include matched nothing: %q", abs, lineNo, pattern))
				}
				sort.Strings(matches)
				for _, m := range matches {
					childBlocks, childWarnings, childErr := parseRecursive(m, baseDir, seen, depth+1)
					warnings = append(warnings, childWarnings...)
					if childErr != nil {
						warnings = append(warnings, fmt.Sprintf("include %s failed: %v", m, childErr))
						continue
					}
					for i := range childBlocks {
						// An Include inside a Host block only applies to that host.
						if !isWildcardAll(enclosing.patterns) {
							childBlocks[i].guards = append(childBlocks[i].guards, enclosing.patterns)
						}
						childBlocks[i].skip = childBlocks[i].skip || enclosing.skip
					}
					blocks = append(blocks, childBlocks...)
				}
			}
		case "host":
			flush()
			patterns := strings.Fields(value)
			if len(patterns) == 0 {
				warnings = append(warnings, fmt.Sprintf("%s:%d Host missing patterns", abs, lineNo))
				patterns = []string{"*"}
			}
			current = rawBlock{patterns: patterns, source: abs}
		case "match":
			flush()
			warnings = append(warnings, fmt.Sprintf("%s:%d Match block not evaluated", abs, lineNo))
			current = rawBlock{patterns: []string{"*"}, source: abs, skip: true}
		default:
			if keywords[lowerKey] {
				current.entries = append(current.entries, entry{key: lowerKey, value: unquote(value)})
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, warnings, fmt.Errorf("scan %s: %w", abs, err)
	}
	flush()
	return blocks, warnings, nil
}

func isWildcardAll(patterns []string) bool {
	return len(patterns) == 1 && patterns[0] == "*"
}

func matchesAny(host string, patterns []string) bool {
	matched := false
	for _, p := range patterns {
		negated := strings.HasPrefix(p, "!")
		pat := strings.TrimPrefix(p, "!")
		if !globMatch(host, pat) {
			continue
		}
		if negated {
			return false
		}
		matched = true
	}
	return matched
}

func globMatch(host, pattern string) bool {
	if pattern == "" {
		return false
	}
	ok, err := path.Match(strings.ToLower(pattern), strings.ToLower(host))
	if err != nil {
		return false
	}
	return ok
}

func splitDirective(line string) (key, value string, ok bool) {
	i := strings.IndexAny(line, " \t=")
	if i <= 0 {
		return "", "", false
	}
	key = strings.TrimSpace(line[:i])
	value = strings.TrimSpace(line[i:])
	value = strings.TrimSpace(strings.TrimPrefix(value, "="))
	return key, value, key != "" && value != ""
}

func stripInlineComment(line string) string {
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuote = !inQuote
		case '#':
			if !inQuote {
				return strings.TrimSpace(line[:i])
			}
		}
	}
	return strings.TrimSpace(line)
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}

func expandHome(p string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return util.ExpandHome(p, home)
}
