package prevalidate

import "regexp"

var (
	clientIDClaimRe     = regexp.MustCompile(`(?i)client[_ ]?id.{0,20}not configured`)
	clientIDLiteralRe   = regexp.MustCompile(`client_id\s*=\s*"([^"]+)"`)
	clientIDPlaceholder = regexp.MustCompile(`(?i)^(your[_-]?client[_-]?id|<[^>]*>|xxx+|todo|changeme|placeholder)$`)

	absolutePathClaimRe  = regexp.MustCompile(`(?i)absolute path.{0,20}not blocked`)
	absolutePathGuardRe  = regexp.MustCompile(`is_absolute\(\)`)
	absolutePathMsgRe    = regexp.MustCompile(`(?i)absolute paths are not allowed`)

	cacheDirClaimRe   = regexp.MustCompile(`(?i)cache dir.{0,20}not created`)
	cacheDirSymbolRe  = regexp.MustCompile(`cache_dir`)
	cacheDirCreateRe  = regexp.MustCompile(`create_dir_all|ensure_dir`)

	safeguardPraiseRe  = regexp.MustCompile(`(?i)already (?:guard|guards|guarded|protect|protects|protected|handle|handles|handled|check|checks|checked)`)
	guardCheckSnippetRe = regexp.MustCompile(`(?i)if\s+.*(nil|empty|len\(|!=\s*0|err\s*!=\s*nil)`)

	nonSecurityPraiseRe = regexp.MustCompile(`(?i)(works correctly|looks fine|good practice|well handled|properly handled)`)
	explicitHandlingRe  = regexp.MustCompile(`(?i)(if err != nil|try\s*\{|catch\s*\(|\.catch\(|recover\(\))`)

	strongDefectMarkersRe = regexp.MustCompile(`(?i)(crash|panic|data loss|corrupt|security|vulnerab|race condition|deadlock|leak)`)

	emptyCatchRe = regexp.MustCompile(`(?is)catch\s*(?:\([^)]*\))?\s*\{\s*(?://[^\n]*\n\s*)*\}`)

	silentErrorRe = regexp.MustCompile(`(?i)(silent|silently|swallow|swallowed|swallows|ignored|ignoring|suppressed errors?)`)

	highSpeculationRe = regexp.MustCompile(`(?i)(revenue|spam|lawsuit|compliance violation|churn|brand damage|pr disaster)`)

	overclaimWordingRe = regexp.MustCompile(`(?i)(will (?:cause|result in|lead to)|definitely|certainly|guaranteed to|always fails)`)
)

// detectContradiction checks the three deterministic contradiction
// patterns spec.md §4.5 names. Returns a reason string when one fires.
func detectContradiction(claimText, snippet string) (reason string, ok bool) {
	if clientIDClaimRe.MatchString(claimText) {
		if m := clientIDLiteralRe.FindStringSubmatch(snippet); m != nil && !clientIDPlaceholder.MatchString(m[1]) {
			return "claim contradicted: client_id is configured with a non-placeholder literal", true
		}
	}
	if absolutePathClaimRe.MatchString(claimText) {
		if absolutePathGuardRe.MatchString(snippet) && absolutePathMsgRe.MatchString(snippet) {
			return "claim contradicted: absolute paths are already rejected in this snippet", true
		}
	}
	if cacheDirClaimRe.MatchString(claimText) {
		if cacheDirSymbolRe.MatchString(snippet) && cacheDirCreateRe.MatchString(snippet) {
			return "claim contradicted: the cache directory is already created here", true
		}
	}
	return "", false
}

// detectNonActionability flags safeguard-praise and non-security-praise
// claims that describe already-handled behavior, unless the claim also
// asserts a strong defect risk.
func detectNonActionability(claimText, snippet string) (reason string, ok bool) {
	if strongDefectMarkersRe.MatchString(claimText) {
		return "", false
	}
	if safeguardPraiseRe.MatchString(claimText) && guardCheckSnippetRe.MatchString(snippet) {
		return "non-actionable: the guard this claim asks for already exists", true
	}
	if nonSecurityPraiseRe.MatchString(claimText) && explicitHandlingRe.MatchString(snippet) {
		return "non-actionable: the snippet already handles this explicitly", true
	}
	return "", false
}

// qualifiesForAutoValidation implements the empty-catch + silent-error
// auto-validation heuristic.
func qualifiesForAutoValidation(claimText, snippet string) bool {
	if !emptyCatchRe.MatchString(snippet) {
		return false
	}
	if !silentErrorRe.MatchString(claimText) {
		return false
	}
	if highSpeculationRe.MatchString(claimText) || overclaimWordingRe.MatchString(claimText) {
		return false
	}
	tokens := NormalizeClaimTokens(claimText)
	overlap, fraction := TokenOverlap(tokens, snippet)
	return overlap >= 1 && fraction >= 0.40
}
