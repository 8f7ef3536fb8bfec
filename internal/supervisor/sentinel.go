package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// sentinelFilename is the name of the give-up record written to the
// state directory when a supervised child exhausts its restart
// budget, so an operator (or the next gatewayd start) can see why a
// component stopped being restarted across a process restart.
const sentinelFilename = "supervisor-giveup.json"

// GiveUpRecord captures why the supervisor stopped restarting a
// child. Adapted from the teacher's SentinelPayload/Sentinel wrapper,
// narrowed to the one scenario this gateway's supervisor persists:
// a child crashing more than its budget allows within the crash
// window.
type GiveUpRecord struct {
	Version   int       `json:"version"`
	Child     string    `json:"child"`
	Reason    string    `json:"reason"`
	Crashes   int       `json:"crashes"`
	Window    string    `json:"window"`
	Timestamp time.Time `json:"timestamp"`
}

func sentinelPath(stateDir string) string {
	return filepath.Join(stateDir, sentinelFilename)
}

// WriteGiveUp persists a GiveUpRecord to stateDir, creating the
// directory if needed.
func WriteGiveUp(stateDir string, record GiveUpRecord) error {
	if stateDir == "" {
		return nil
	}
	record.Version = 1
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("supervisor: create state dir: %w", err)
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("supervisor: marshal give-up record: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(sentinelPath(stateDir), data, 0o644); err != nil {
		return fmt.Errorf("supervisor: write give-up record: %w", err)
	}
	return nil
}

// ReadGiveUp reads a previously written GiveUpRecord, or returns nil
// if none exists or the file is not a valid record (an invalid file
// is deleted).
func ReadGiveUp(stateDir string) (*GiveUpRecord, error) {
	path := sentinelPath(stateDir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("supervisor: read give-up record: %w", err)
	}

	var record GiveUpRecord
	if err := json.Unmarshal(data, &record); err != nil || record.Version != 1 {
		_ = os.Remove(path)
		return nil, nil
	}
	return &record, nil
}

// ConsumeGiveUp reads and deletes the give-up record, for a caller
// that wants to surface it once and move on (e.g. a startup log line
// that acknowledges a prior restart-budget exhaustion).
func ConsumeGiveUp(stateDir string) (*GiveUpRecord, error) {
	record, err := ReadGiveUp(stateDir)
	if err != nil || record == nil {
		return record, err
	}
	_ = os.Remove(sentinelPath(stateDir))
	return record, nil
}
