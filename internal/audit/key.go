package audit

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// BuildKey places a turn under audit/<session>/date=YYYY-MM-DD/ using the UTC
// day the turn finished.
func BuildKey(sessionID string, finishedAt time.Time, turnIndex int) (string, error) {
	if !sessionIDPattern.MatchString(sessionID) {
		return "", fmt.Errorf("invalid session id: %q", sessionID)
	}
	if turnIndex < 0 {
		return "", fmt.Errorf("turn index must be >= 0")
	}
	ts := finishedAt.UTC()
	return path.Join(
		"audit",
		sessionID,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		fmt.Sprintf("turn-%05d.parquet", turnIndex),
	), nil
}
