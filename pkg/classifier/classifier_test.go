package classifier

import (
	"reflect"
	"strings"
	"testing"

	"github.com/driftsec/fuzzfleet/pkg/types"
)

func TestClassifyAdminURL(t *testing.T) {
	rec := types.RawRecord{URL: "https://t/admin", Status: 200, Length: 512, Words: 10, Lines: 5}

	f := Classify("task_1", rec)
	if f == nil {
		t.Fatal("Classify() returned nil for admin URL")
	}
	if f.Severity != types.SeverityMedium {
		t.Errorf("severity = %q, want %q", f.Severity, types.SeverityMedium)
	}

	wantPrefix := "MEDIUM: Suspicious pattern in URL: (admin"
	found := false
	for _, issue := range f.DetectedIssues {
		if strings.HasPrefix(issue, wantPrefix) {
			found = true
		}
	}
	if !found {
		t.Errorf("issues %v missing %q", f.DetectedIssues, wantPrefix)
	}

	if !containsIssue(f.DetectedIssues, "Valid resource found") {
		t.Errorf("issues %v missing status annotation", f.DetectedIssues)
	}
}

func TestClassifyGitConfigIsCritical(t *testing.T) {
	rec := types.RawRecord{URL: "https://t/.git/config", Status: 200, Length: 2048, Words: 20, Lines: 10}

	f := Classify("task_1", rec)
	if f == nil {
		t.Fatal("Classify() returned nil for .git URL")
	}
	if f.Severity != types.SeverityCritical {
		t.Errorf("severity = %q, want %q", f.Severity, types.SeverityCritical)
	}
}

func TestClassifyDropsNoisy404(t *testing.T) {
	rec := types.RawRecord{URL: "https://t/about", Status: 404, Length: 0, Words: 0, Lines: 0}

	if f := Classify("task_1", rec); f != nil {
		t.Errorf("Classify() = %+v, want nil for plain 404", f)
	}
}

func TestClassifySuspiciousURLSurvivesNoisyStatus(t *testing.T) {
	// A 404 for a suspicious path still carries signal.
	rec := types.RawRecord{URL: "https://t/backup.tar", Status: 404, Length: 0}

	f := Classify("task_1", rec)
	if f == nil {
		t.Fatal("Classify() returned nil for suspicious 404")
	}
	if f.Severity != types.SeverityCritical {
		t.Errorf("severity = %q, want %q (sensitive extension)", f.Severity, types.SeverityCritical)
	}
}

func TestClassifyForbiddenSmallResponse(t *testing.T) {
	rec := types.RawRecord{URL: "https://t/api/v1", Status: 403, Length: 50, Words: 5, Lines: 2}

	f := Classify("task_1", rec)
	if f == nil {
		t.Fatal("Classify() returned nil for 403")
	}
	if f.Severity != types.SeverityLow {
		t.Errorf("severity = %q, want %q", f.Severity, types.SeverityLow)
	}
	if !containsIssue(f.DetectedIssues, "Access forbidden - possible privilege escalation") {
		t.Errorf("issues %v missing forbidden annotation", f.DetectedIssues)
	}
	if !containsIssue(f.DetectedIssues, "Very small response - possible error page") {
		t.Errorf("issues %v missing small-response annotation", f.DetectedIssues)
	}
}

func TestClassifyRedirectIsLow(t *testing.T) {
	// No URL or length signal: 200 with an unremarkable medium-sized body.
	rec := types.RawRecord{URL: "https://t/xyz", Status: 301, Length: 500}

	f := Classify("task_1", rec)
	if f == nil {
		t.Fatal("Classify() returned nil")
	}
	// "Redirect found" carries no severity keyword, so the non-empty issue
	// list resolves to low, not the info fallback.
	if f.Severity != types.SeverityLow {
		t.Errorf("severity = %q, want %q", f.Severity, types.SeverityLow)
	}
}

func TestClassifyDropsSignallessStatus(t *testing.T) {
	// 204 has no annotation; with no other signal the record is dropped.
	rec := types.RawRecord{URL: "https://t/xyz", Status: 204, Length: 500}

	if f := Classify("task_1", rec); f != nil {
		t.Errorf("Classify() = %+v, want nil", f)
	}
}

func TestClassifySeverityPrecedence(t *testing.T) {
	tests := []struct {
		name string
		rec  types.RawRecord
		want types.Severity
	}{
		{"critical beats high", types.RawRecord{URL: "https://t/.env/password", Status: 200, Length: 300}, types.SeverityCritical},
		{"high beats medium", types.RawRecord{URL: "https://t/admin/secret", Status: 200, Length: 300}, types.SeverityHigh},
		{"medium alone", types.RawRecord{URL: "https://t/login", Status: 200, Length: 300}, types.SeverityMedium},
		{"large response alone is low", types.RawRecord{URL: "https://t/xyz", Status: 200, Length: 2_000_000}, types.SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Classify("task_1", tt.rec)
			if f == nil {
				t.Fatal("Classify() returned nil")
			}
			if f.Severity != tt.want {
				t.Errorf("severity = %q, want %q", f.Severity, tt.want)
			}
		})
	}
}

func TestClassifyIsPure(t *testing.T) {
	rec := types.RawRecord{URL: "https://t/admin/config.bak", Status: 200, Length: 1234, Words: 42, Lines: 7}

	first := Classify("task_1", rec)
	second := Classify("task_1", rec)
	if first == nil || second == nil {
		t.Fatal("Classify() returned nil")
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Classify() is not deterministic:\n%+v\n%+v", first, second)
	}
}

func TestFindingIDStable(t *testing.T) {
	a := FindingID("task_1", "https://t/admin")
	b := FindingID("task_1", "https://t/admin")
	if a != b {
		t.Errorf("FindingID not stable: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "finding_") {
		t.Errorf("FindingID %q missing prefix", a)
	}
	if c := FindingID("task_2", "https://t/admin"); c == a {
		t.Error("FindingID ignores task id")
	}
	if d := FindingID("task_1", "https://t/other"); d == a {
		t.Error("FindingID ignores url")
	}
}

func containsIssue(issues []string, want string) bool {
	for _, issue := range issues {
		if issue == want {
			return true
		}
	}
	return false
}
