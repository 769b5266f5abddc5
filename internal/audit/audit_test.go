package audit

import "testing"

func TestSeverityForGrading(t *testing.T) {
	cases := []struct {
		action Action
		want   Severity
	}{
		{ActionImportStart, SeverityLow},
		{ActionImportComplete, SeverityLow},
		{ActionImportFail, SeverityMedium},
		{ActionRollback, SeverityHigh},
		{ActionTableReset, SeverityCritical},
	}
	for _, c := range cases {
		if got := severityFor(c.action); got != c.want {
			t.Errorf("severityFor(%s) = %s, want %s", c.action, got, c.want)
		}
	}
}
