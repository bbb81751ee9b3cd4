package harness

import (
	"github.com/ethereum-optimism/infra/op-harness/engine"
)

// getOutcomeString returns a marked string representing an analysis outcome
func getOutcomeString(status engine.Status) string {
	switch status {
	case engine.StatusSuccess:
		return "✓ " + string(status)
	default:
		return "✗ " + string(status)
	}
}

// getTestString returns a marked string representing a test result label
func getTestString(label string) string {
	switch label {
	case "pass":
		return "✓ pass"
	case "fail":
		return "✗ fail"
	default:
		return "! " + label
	}
}
