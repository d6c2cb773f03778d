package service

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxUsernameLength  = 64
	maxTitleLength     = 256
	maxCandidateLength = 128
)

func normalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", fmt.Errorf("username is required: %w", ErrInvalidInput)
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return "", fmt.Errorf("username longer than %d characters: %w", maxUsernameLength, ErrInvalidInput)
	}
	return username, nil
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("title is required: %w", ErrInvalidInput)
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", fmt.Errorf("title longer than %d characters: %w", maxTitleLength, ErrInvalidInput)
	}
	return title, nil
}

// normalizeChoices trims names and rejects empty lists, blank names and
// duplicates. Order is preserved.
func normalizeChoices(kind string, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("at least one %s is required: %w", kind, ErrInvalidInput)
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("%s name is empty: %w", kind, ErrInvalidInput)
		}
		if utf8.RuneCountInString(name) > maxCandidateLength {
			return nil, fmt.Errorf("%s %q longer than %d characters: %w", kind, name, maxCandidateLength, ErrInvalidInput)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate %s %q: %w", kind, name, ErrInvalidInput)
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

func validateWindow(start, end int64) error {
	if end <= start {
		return fmt.Errorf("end_time %d must be after start_time %d: %w", end, start, ErrInvalidTimeWindow)
	}
	return nil
}
