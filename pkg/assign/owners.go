package assign

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codeGROOVE-dev/auto-assign/pkg/types"

	"github.com/bmatcuk/doublestar/v4"
)

// ReviewersFromDiff returns candidate reviewer names based on which files the
// pull request changed, using the owners table of path patterns.
//
// For each file, only the deepest matching patterns count (a pattern for
// `compiler/codegen` outranks one for `compiler`, on the assumption that it
// is more specialized). Each file adds one point per matching pattern just
// for being touched, plus one point per added or removed diff line. The
// candidate lists of the globally highest-scoring pattern(s) are merged,
// sorted, and deduplicated.
//
// Returns an error if the owners table contains an invalid pattern. Beware
// this may return an empty list if nothing matches.
func ReviewersFromDiff(owners map[string][]string, diff []types.FileDiff) ([]string, error) {
	// Total weight per owners pattern, accumulated across all files. This
	// weights the reviewer choice towards places where the most edits are done.
	counts := make(map[string]int)

	for _, file := range diff {
		// Depth (path segment count) of each pattern matching this file.
		matching := make(map[string]int)
		for pattern := range owners {
			ok, err := patternMatches(pattern, file.Path)
			if err != nil {
				return nil, fmt.Errorf("owner file pattern %q is not valid: %w", pattern, err)
			}
			if ok {
				matching[pattern] = len(strings.Split(pattern, "/"))
			}
		}

		// Keep only the deepest matches. Ties keep all patterns at max depth.
		maxDepth := 0
		for _, depth := range matching {
			if depth > maxDepth {
				maxDepth = depth
			}
		}
		var longest []string
		for pattern, depth := range matching {
			if depth == maxDepth {
				longest = append(longest, pattern)
			}
		}

		// Touch weight, so files modified without any line changes still count.
		for _, pattern := range longest {
			counts[pattern]++
		}

		// One point per added or removed line, skipping the +++/--- headers.
		for _, line := range strings.Split(file.Diff, "\n") {
			added := strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++")
			removed := strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---")
			if added || removed {
				for _, pattern := range longest {
					counts[pattern]++
				}
			}
		}
	}

	maxCount := 0
	for _, count := range counts {
		if count > maxCount {
			maxCount = count
		}
	}
	if maxCount == 0 {
		return nil, nil
	}

	// Equally-weighted patterns all contribute their candidates.
	var potential []string
	for pattern, count := range counts {
		if count == maxCount {
			potential = append(potential, owners[pattern]...)
		}
	}
	sort.Strings(potential)
	return dedupeSorted(potential), nil
}

// patternMatches reports whether a gitignore-style owners pattern matches the
// given file path or any of its parent directories. Patterns with a leading
// slash or an interior slash are anchored at the repository root; bare
// patterns match any single path segment, as in gitignore.
func patternMatches(pattern, path string) (bool, error) {
	anchored := strings.HasPrefix(pattern, "/")
	pat := strings.Trim(pattern, "/")
	if pat == "" {
		return false, doublestar.ErrBadPattern
	}
	if !doublestar.ValidatePattern(pat) {
		return false, doublestar.ErrBadPattern
	}
	cleaned := strings.TrimPrefix(path, "/")

	if anchored || strings.Contains(pat, "/") {
		for prefix := cleaned; prefix != ""; prefix = parentDir(prefix) {
			ok, err := doublestar.Match(pat, prefix)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	for _, segment := range strings.Split(cleaned, "/") {
		ok, err := doublestar.Match(pat, segment)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// parentDir returns the parent directory of a slash-separated path, or ""
// when there is none left.
func parentDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// dedupeSorted removes adjacent duplicates from a sorted slice.
func dedupeSorted(names []string) []string {
	out := names[:0]
	for i, name := range names {
		if i == 0 || names[i-1] != name {
			out = append(out, name)
		}
	}
	return out
}
