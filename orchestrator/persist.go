package orchestrator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// WindowBundle is the windows.json document of an export.
type WindowBundle struct {
	SessionID   string    `json:"session_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Answers     []answer  `json:"answers"`
}

func mkSessionDir(outputsRoot, sessionID string) (string, error) {
	dir := filepath.Join(outputsRoot, "session_"+sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// Export writes session_<id>/report.yaml and windows.json under outputsRoot
// and returns the session directory.
func (o *Orchestrator) Export(outputsRoot string) (string, error) {
	o.mu.Lock()
	report := Summarize(o.sessionID, o.cfg.Domain, o.scores)
	bundle := WindowBundle{
		SessionID:   o.sessionID,
		GeneratedAt: o.deps.Now(),
		Answers:     append([]answer(nil), o.answers...),
	}
	o.mu.Unlock()

	dir, err := WriteReport(outputsRoot, report)
	if err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(dir, "windows.json"), bundle); err != nil {
		return "", err
	}
	o.log.WithField("dir", dir).Info("session exported")
	return dir, nil
}

// WriteReport writes session_<id>/report.yaml under outputsRoot.
func WriteReport(outputsRoot string, r Report) (string, error) {
	dir, err := mkSessionDir(outputsRoot, r.SessionID)
	if err != nil {
		return "", err
	}
	if err := writeYAML(filepath.Join(dir, "report.yaml"), r); err != nil {
		return "", err
	}
	return dir, nil
}
