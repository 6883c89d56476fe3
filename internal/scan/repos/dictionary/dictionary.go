// Package dictionary loads candidate parameter names from a file. Structured
// formats (YAML, JSON, TOML) list names under a single key; anything else is
// treated as newline-delimited plain text, one name per line.
package dictionary

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"

	"github.com/paramhunt/paramhunt/internal/scan/domain"
)

// namesKey is the structured-format key under which candidate names are
// listed, e.g. `names: [a, b, c]` in YAML.
const namesKey = "names"

// Load reads candidate names from path, deduplicating while preserving
// first-seen order. Structured formats (.yaml, .yml, .json, .toml) read a
// `names` list; any other extension is read as plain text, one name per
// line, blank lines and lines starting with '#' skipped.
func Load(path string) (domain.Chunk, error) {
	ext := strings.ToLower(filepath.Ext(path))
	var names []string
	var err error
	switch ext {
	case ".yaml", ".yml", ".json", ".toml":
		names, err = loadStructured(path, ext)
	default:
		names, err = loadPlainText(path)
	}
	if err != nil {
		return nil, err
	}
	return dedupe(names), nil
}

func loadStructured(path, ext string) ([]string, error) {
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	case ".toml":
		parser = toml.Parser()
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("load dictionary %s: %w", path, err)
	}

	raw := k.Get(namesKey)
	if raw == nil {
		return nil, fmt.Errorf("dictionary %s missing '%s' list", path, namesKey)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("dictionary %s: '%s' is not a list", path, namesKey)
	}

	names := make([]string, 0, len(list))
	for _, elem := range list {
		s, ok := elem.(string)
		if !ok {
			continue // skip non-strings silently
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		names = append(names, s)
	}
	return names, nil
}

func loadPlainText(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary %s: %w", path, err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary %s: %w", path, err)
	}
	return names, nil
}

// dedupe removes repeated names, keeping the first occurrence's position.
func dedupe(names []string) domain.Chunk {
	seen := make(map[string]struct{}, len(names))
	out := make(domain.Chunk, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, domain.Candidate(n))
	}
	return out
}
