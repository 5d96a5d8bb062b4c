package ingest

import "strings"

const (
	sampleLines   = 5
	maxCellLength = 50
)

// Candidate delimiters in preference order; earlier wins on equal score.
var candidates = []rune{'\t', ',', ';', '|', ' '}

// Delimiters tried when the detected one does not produce a usable table.
var fallbacks = []rune{'\t', ',', ';', '|'}

// DelimiterName returns a human label for a delimiter.
func DelimiterName(d rune) string {
	switch d {
	case '\t':
		return "tab"
	case ',':
		return "comma"
	case ';':
		return "semicolon"
	case '|':
		return "pipe"
	case ' ':
		return "space"
	}
	return string(d)
}

// DetectDelimiter scores each candidate over the first five non-blank lines.
// A line scores one point when it splits into more than one column and one
// more when every part is shorter than fifty characters. Column count
// consistency adds two points when all lines agree on more than one column,
// or one point when at most two distinct counts appear.
func DetectDelimiter(text string) rune {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > sampleLines {
		lines = lines[:sampleLines]
	}

	best, bestScore := rune(0), 0
	for _, d := range candidates {
		score := 0
		counts := make(map[int]struct{})
		seen := 0
		for _, line := range lines {
			line = strings.TrimRight(line, "\r")
			if strings.TrimSpace(line) == "" {
				continue
			}
			seen++
			parts := strings.Split(line, string(d))
			counts[len(parts)] = struct{}{}
			if len(parts) <= 1 {
				continue
			}
			score++
			short := true
			for _, p := range parts {
				if len([]rune(strings.TrimSpace(p))) >= maxCellLength {
					short = false
					break
				}
			}
			if short {
				score++
			}
		}
		if seen == 0 {
			continue
		}
		switch {
		case len(counts) == 1 && singleCount(counts) > 1:
			score += 2
		case len(counts) <= 2:
			score++
		}
		if score > bestScore {
			best, bestScore = d, score
		}
	}
	if bestScore > 0 {
		return best
	}

	first := ""
	if len(lines) > 0 {
		first = lines[0]
	}
	for _, d := range fallbacks {
		if strings.ContainsRune(first, d) {
			return d
		}
	}
	return ','
}

func singleCount(counts map[int]struct{}) int {
	for c := range counts {
		return c
	}
	return 0
}
