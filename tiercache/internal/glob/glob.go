// Package glob implements the flat glob matching RemovePattern needs
// (§4.6): '*' matches any run of characters, '?' matches exactly one. The
// standard library's path.Match is close but treats '/' specially (it
// refuses to let '*' cross a path separator), which is wrong for cache keys
// that routinely contain '/' as an ordinary character rather than a path
// boundary. No pack example imports a glob library, so this is the one
// deliberate standard-library-only component in the module (see DESIGN.md).
package glob

// Match reports whether s matches pattern, where '*' matches any sequence
// of bytes (including none) and '?' matches exactly one byte. Matching is
// byte-wise, matching the key domain (opaque strings, not paths).
func Match(pattern, s string) bool {
	return match(pattern, s)
}

// match is a classic O(len(pattern)*len(s)) DP-free two-pointer matcher with
// backtracking on the last seen '*', avoiding both recursion depth issues
// and the exponential blowup of naive backtracking on adversarial patterns.
func match(pattern, s string) bool {
	var pIdx, sIdx int
	var starIdx = -1
	var starMatch int

	for sIdx < len(s) {
		if pIdx < len(pattern) && (pattern[pIdx] == '?' || pattern[pIdx] == s[sIdx]) {
			pIdx++
			sIdx++
			continue
		}
		if pIdx < len(pattern) && pattern[pIdx] == '*' {
			starIdx = pIdx
			starMatch = sIdx
			pIdx++
			continue
		}
		if starIdx != -1 {
			pIdx = starIdx + 1
			starMatch++
			sIdx = starMatch
			continue
		}
		return false
	}

	for pIdx < len(pattern) && pattern[pIdx] == '*' {
		pIdx++
	}
	return pIdx == len(pattern)
}
