package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// mentionPattern matches @repo mentions. An optional @version suffix is
// captured and discarded; pinned versions are not implemented yet.
var (
	mentionPattern    = regexp.MustCompile(`@([a-zA-Z0-9_-]+)(@[a-zA-Z0-9._-]+)?`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Parsed is the result of splitting a raw question into its repository
// set and the remaining prompt text.
type Parsed struct {
	Repos  []string
	Prompt string
}

// Parse extracts @repo mentions from input. Mentioned names are
// lowercased, deduplicated and sorted; the returned prompt has all
// mentions removed and runs of whitespace collapsed to single spaces.
// Unknown names are not filtered here; resolution against the registry
// is the caller's job.
func Parse(input string) Parsed {
	matches := mentionPattern.FindAllStringSubmatch(input, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}

	prompt := mentionPattern.ReplaceAllString(input, " ")
	prompt = whitespacePattern.ReplaceAllString(prompt, " ")

	return Parsed{
		Repos:  Merge(names),
		Prompt: strings.TrimSpace(prompt),
	}
}

// Merge flattens any number of name lists into one canonical set:
// lowercased, deduplicated, sorted by code point.
func Merge(lists ...[]string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, list := range lists {
		for _, raw := range list {
			name := strings.ToLower(strings.TrimSpace(raw))
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// WorkspaceKey returns the canonical key for a repository set: the
// sorted lowercase names joined with "+". The same set always yields
// the same key regardless of input order.
func WorkspaceKey(names []string) (string, error) {
	canonical := Merge(names)
	if len(canonical) == 0 {
		return "", fmt.Errorf("workspace key requires at least one repository")
	}
	return strings.Join(canonical, "+"), nil
}

// SplitKey parses a workspace key back into its member names. Names
// never contain "+", so a plain split is total.
func SplitKey(key string) []string {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	return strings.Split(key, "+")
}
