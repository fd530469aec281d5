package evidence

import "regexp"

// secretPatterns is the fixed list of shapes redacted from any snippet
// before it is offered to an LLM. Each whole match is replaced with the
// redacted marker; named captures are not preserved, matching the "replace
// the whole match" rule.
var secretPatterns = []*regexp.Regexp{
	// quoted key/value assignments for common secret-ish keys
	regexp.MustCompile(`(?i)\b(api[_-]?key|token|secret|password)\b\s*[:=]\s*["'][^"']{4,}["']`),
	// bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]{16,}=*`),
	// OpenAI-style secret keys
	regexp.MustCompile(`\bsk-[A-Za-z0-9]{16,}\b`),
	// GitHub tokens: ghp_, gho_, ghu_, ghs_, ghr_
	regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{20,}\b`),
	// AWS access key ids
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	// PEM private-key blocks
	regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`),
}

const redactedMarker = "<redacted-secret>"

// RedactSecrets replaces every recognized secret shape in s with a fixed
// marker, leaving the rest of the text untouched.
func RedactSecrets(s string) string {
	for _, re := range secretPatterns {
		s = re.ReplaceAllString(s, redactedMarker)
	}
	return s
}
