package models

import "strings"

// Category classifies what kind of problem an issue describes.
type Category string

const (
	CategoryCodeQuality   Category = "Code Quality"
	CategoryPerformance   Category = "Performance"
	CategorySecurity      Category = "Security"
	CategoryBestPractices Category = "Best Practices"
	CategoryRefactoring   Category = "Refactoring"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryCodeQuality,
	CategoryPerformance,
	CategorySecurity,
	CategoryBestPractices,
	CategoryRefactoring,
}

// Severity represents how serious an issue is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists every severity from least to most serious.
var Severities = []Severity{
	SeverityLow,
	SeverityMedium,
	SeverityHigh,
	SeverityCritical,
}

// ParseCategory matches s case-insensitively against the known categories.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return "", false
}

// ParseSeverity matches s case-insensitively against the known severities.
func ParseSeverity(s string) (Severity, bool) {
	s = strings.TrimSpace(s)
	for _, sev := range Severities {
		if strings.EqualFold(s, string(sev)) {
			return sev, true
		}
	}
	return "", false
}

// Issue is one finding within a review.
type Issue struct {
	ID                string   `json:"id"`
	Category          Category `json:"category"`
	Severity          Severity `json:"severity"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	LineNumber        *int     `json:"lineNumber,omitempty"`
	Explanation       string   `json:"explanation"`
	RefactoredExample string   `json:"refactoredExample,omitempty"`
}
