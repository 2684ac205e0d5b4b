package qualitygate

import (
	"fmt"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// SecretFinding is one secret detected in an artifact.
type SecretFinding struct {
	RuleID      string
	Description string
	Line        int
}

// SecretScanner scans file content for committed credentials.
type SecretScanner interface {
	Scan(content string) ([]SecretFinding, error)
}

// GitleaksScanner scans with the default gitleaks rule set. The detector
// is built on first use and reused.
type GitleaksScanner struct {
	once     sync.Once
	detector *detect.Detector
	err      error
	mu       sync.Mutex
}

// Scan implements SecretScanner.
func (g *GitleaksScanner) Scan(content string) ([]SecretFinding, error) {
	g.once.Do(func() {
		g.detector, g.err = detect.NewDetectorDefaultConfig()
	})
	if g.err != nil {
		return nil, fmt.Errorf("gitleaks detector: %w", g.err)
	}

	g.mu.Lock()
	findings := g.detector.DetectString(content)
	g.mu.Unlock()

	out := make([]SecretFinding, 0, len(findings))
	for _, f := range findings {
		out = append(out, SecretFinding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Line:        f.StartLine,
		})
	}
	return out, nil
}
