// Package history keeps the CLI's selection caches and command history.
//
// Endpoint and path selections live in temp-dir line files ranked by
// usage, so the picker offers the most-used entries first. The command
// history file backs the interactive shell's readline history and is
// deduplicated on load, keeping the most recent occurrence of each
// command.
package history

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Penlect/emqxlwm2m/errors"
)

// DefaultLimit bounds how many recorded selections influence ranking.
const DefaultLimit = 10

// EndpointsPath is the endpoint selection cache file.
func EndpointsPath() string {
	return filepath.Join(os.TempDir(), "emqxlwm2m.history.endpoints")
}

// PathsPath is the path selection cache file.
func PathsPath() string {
	return filepath.Join(os.TempDir(), "emqxlwm2m.history.paths")
}

// CommandPath is the interactive shell history file.
func CommandPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".emqxlwm2m_history")
	}
	return filepath.Join(home, ".emqxlwm2m_history")
}

// SelectionCache ranks selection candidates by recorded usage. The cache
// file is a plain line file; each recorded selection appends one line.
// The key of a line is its first whitespace-separated field, so a line
// may carry trailing annotation without splitting the count.
type SelectionCache struct {
	path     string
	limit    int
	usage    map[string]int
	index    map[string]int
	selected string
}

// OpenSelection reads the cache file. A missing file is an empty cache.
func OpenSelection(path string, limit int) (*SelectionCache, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	c := &SelectionCache{
		path:  path,
		limit: limit,
		usage: make(map[string]int),
		index: make(map[string]int),
	}

	lines, err := readLines(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, errors.WrapTransient(err, "SelectionCache", "OpenSelection", "read cache file")
	}
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	for i, line := range lines {
		key := lineKey(line)
		c.usage[key]++
		c.index[key] = i
	}
	if len(lines) > 0 {
		// The most recent selection always ranks first.
		c.usage[lineKey(lines[len(lines)-1])] = limit
	}
	return c, nil
}

// Rank orders candidates most-used first. Candidates the cache has never
// seen keep their relative order after the known ones.
func (c *SelectionCache) Rank(candidates []string) []string {
	out := make([]string, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		ki, kj := lineKey(out[i]), lineKey(out[j])
		if c.usage[ki] != c.usage[kj] {
			return c.usage[ki] > c.usage[kj]
		}
		return c.index[ki] > c.index[kj]
	})
	return out
}

// Record notes the selection to append on Close. Only the last recorded
// selection is written.
func (c *SelectionCache) Record(selection string) {
	c.selected = selection
}

// Close appends the recorded selection, if any, to the cache file.
func (c *SelectionCache) Close() error {
	if c.selected == "" {
		return nil
	}
	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.WrapTransient(err, "SelectionCache", "Close", "open cache file")
	}
	defer f.Close()
	if _, err := f.WriteString(c.selected + "\n"); err != nil {
		return errors.WrapTransient(err, "SelectionCache", "Close", "append selection")
	}
	return nil
}

// LoadCommands reads the shell history, newest last, with duplicates
// removed keeping each command's most recent occurrence. The single
// letter quit command never survives a reload. A missing file yields an
// empty history.
func LoadCommands(path string) ([]string, error) {
	lines, err := readLines(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapTransient(err, "history", "LoadCommands", "read history file")
	}

	seen := map[string]bool{"q": true}
	var reversed []string
	for i := len(lines) - 1; i >= 0; i-- {
		if seen[lines[i]] {
			continue
		}
		seen[lines[i]] = true
		reversed = append(reversed, lines[i])
	}
	out := make([]string, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		out = append(out, reversed[i])
	}
	return out, nil
}

// SaveCommands writes the shell history, one command per line.
func SaveCommands(path string, commands []string) error {
	var b strings.Builder
	for _, cmd := range commands {
		b.WriteString(cmd)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return errors.WrapTransient(err, "history", "SaveCommands", "write history file")
	}
	return nil
}

// EndpointsFromArgs expands endpoint arguments: a plain name passes
// through, a file name is read as one endpoint per line with '#' comments
// skipped.
func EndpointsFromArgs(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || info.IsDir() {
			out = append(out, arg)
			continue
		}
		lines, err := readLines(arg)
		if err != nil {
			return nil, errors.WrapTransient(err, "history", "EndpointsFromArgs", "read endpoint file")
		}
		out = append(out, lines...)
	}
	return out, nil
}

func lineKey(line string) string {
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		return line[:i]
	}
	return line
}

// readLines yields trimmed, non-empty, non-comment lines.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
