package evidence

import (
	"regexp"
	"strings"
)

var testPathMarkers = []string{"/tests/", "/test/"}

var testPathSuffixes = regexp.MustCompile(`(?i)(_test\.rs|\.test\.tsx?|\.spec\.tsx?|\.test\.js|\.spec\.js)$`)

// isTestLikePath reports whether a repo-relative path looks like test code.
func isTestLikePath(path string) bool {
	lower := strings.ToLower(strings.ReplaceAll(path, "\\", "/"))
	for _, marker := range testPathMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return testPathSuffixes.MatchString(lower)
}

var testSnippetMarkers = []string{
	"#[test]", "mod tests", "fn test_", "assert!(", "assert_eq!(", "assert_ne!(",
}

// snippetLooksLikeTest reports whether a snippet's contents look like test code.
func snippetLooksLikeTest(snippet string) bool {
	for _, marker := range testSnippetMarkers {
		if strings.Contains(snippet, marker) {
			return true
		}
	}
	return false
}
