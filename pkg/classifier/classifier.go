package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/driftsec/fuzzfleet/pkg/types"
)

// suspiciousPattern pairs a case-insensitive URL regex with the severity
// level it signals. The issue text quotes the pattern source so analysts can
// see which rule fired.
type suspiciousPattern struct {
	re     *regexp.Regexp
	source string
	level  types.Severity
}

var suspiciousPatterns = []suspiciousPattern{
	compilePattern(`(password|pwd|pass|key|secret|token)`, types.SeverityHigh),
	compilePattern(`(backup|dump|archive|old)`, types.SeverityMedium),
	compilePattern(`(admin|login|auth|dashboard)`, types.SeverityMedium),
	compilePattern(`(config|configuration|setting)`, types.SeverityHigh),
	compilePattern(`(\.git|\.env|\.bak|\.old)`, types.SeverityCritical),
	compilePattern(`(phpinfo|test|debug)`, types.SeverityMedium),
}

func compilePattern(source string, level types.Severity) suspiciousPattern {
	return suspiciousPattern{
		re:     regexp.MustCompile(`(?i)` + source),
		source: source,
		level:  level,
	}
}

var sensitiveExtensions = []string{".git", ".env", ".bak", ".old", ".tar", ".zip"}

// Status codes that are dropped unless the URL itself looks suspicious
var noiseStatuses = map[int]bool{400: true, 404: true, 500: true}

// FindingID derives a stable finding identifier from (taskID, url). The same
// URL reported twice for a task, including across result replays, yields the
// same id.
func FindingID(taskID, rawURL string) string {
	sum := sha256.Sum256([]byte(taskID + "|" + rawURL))
	return "finding_" + hex.EncodeToString(sum[:])[:16]
}

// Classify converts one raw fuzzer record into a Finding, or nil when the
// record carries no signal worth keeping. Pure: no I/O, no clock reads, and
// identical inputs produce identical outputs.
func Classify(taskID string, rec types.RawRecord) *types.Finding {
	urlIssues := analyzeURL(rec.URL)

	// 400/404/500 responses are noise unless the URL itself fired a rule.
	if noiseStatuses[rec.Status] && len(urlIssues) == 0 {
		return nil
	}

	issues := append([]string{}, urlIssues...)
	issues = append(issues, analyzeStatusCode(rec.Status)...)
	issues = append(issues, analyzeContentLength(rec.Length)...)

	severity := severityFromIssues(issues)
	if severity == "" {
		if len(issues) > 0 {
			severity = types.SeverityLow
		} else if rec.Status == 200 || rec.Status == 301 || rec.Status == 302 || rec.Status == 403 {
			issues = append(issues, fmt.Sprintf("Interesting status code: %d", rec.Status))
			severity = types.SeverityInfo
		} else {
			return nil
		}
	}

	raw, _ := json.MarshalIndent(rec, "", "  ")

	return &types.Finding{
		ID:             FindingID(taskID, rec.URL),
		TaskID:         taskID,
		URL:            rec.URL,
		StatusCode:     rec.Status,
		ContentLength:  rec.Length,
		Words:          rec.Words,
		Lines:          rec.Lines,
		Severity:       severity,
		DetectedIssues: issues,
		RawResponse:    string(raw),
	}
}

func analyzeURL(rawURL string) []string {
	var issues []string

	for _, p := range suspiciousPatterns {
		if p.re.MatchString(rawURL) {
			issues = append(issues, fmt.Sprintf("%s: Suspicious pattern in URL: %s",
				strings.ToUpper(string(p.level)), p.source))
		}
	}

	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	for _, ext := range sensitiveExtensions {
		if strings.HasSuffix(path, ext) {
			issues = append(issues, "CRITICAL: Sensitive file extension detected")
			break
		}
	}

	return issues
}

func analyzeStatusCode(status int) []string {
	switch status {
	case 200:
		return []string{"Valid resource found"}
	case 301, 302:
		return []string{"Redirect found"}
	case 403:
		return []string{"Access forbidden - possible privilege escalation"}
	case 500:
		return []string{"Server error - possible vulnerability"}
	}
	return nil
}

func analyzeContentLength(length int64) []string {
	switch {
	case length == 0:
		return []string{"Empty response"}
	case length > 1000000:
		return []string{"Large response - possible data exposure"}
	case length < 100:
		return []string{"Very small response - possible error page"}
	}
	return nil
}

// severityFromIssues picks the highest level named anywhere in the issue
// texts, searched critical > high > medium > low. Empty result means no
// level-bearing issue was present.
func severityFromIssues(issues []string) types.Severity {
	for _, level := range []types.Severity{
		types.SeverityCritical, types.SeverityHigh, types.SeverityMedium, types.SeverityLow,
	} {
		for _, issue := range issues {
			if strings.Contains(strings.ToLower(issue), string(level)) {
				return level
			}
		}
	}
	return ""
}
