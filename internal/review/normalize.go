package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/joescharf/codelens/internal/models"
)

var (
	// ErrUnparsable means the model output is not a JSON document.
	ErrUnparsable = errors.New("analysis unparsable")
	// ErrInvalid means the output parsed but does not match the review schema.
	ErrInvalid = errors.New("analysis invalid")
)

// fenced matches output wrapped in a markdown code fence with an optional language tag.
var fenced = regexp.MustCompile("(?s)^```[\\w+#.-]*[ \\t]*\\r?\\n?(.*?)\\r?\\n?```$")

// maxLineNumber bounds lineNumber so the int conversion cannot overflow.
const maxLineNumber = math.MaxInt32

// Analysis is normalized model output, ready to become a Review.
type Analysis struct {
	Issues        []models.Issue
	SeverityScore int
}

type rawIssue struct {
	Category          *string  `json:"category"`
	Severity          *string  `json:"severity"`
	Title             *string  `json:"title"`
	Description       *string  `json:"description"`
	LineNumber        *float64 `json:"lineNumber"`
	Explanation       *string  `json:"explanation"`
	RefactoredExample *string  `json:"refactoredExample"`
}

type rawAnalysis struct {
	Issues        *[]rawIssue `json:"issues"`
	SeverityScore *float64    `json:"severityScore"`
}

// StripFences removes a surrounding markdown code fence from text.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if m := fenced.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// Normalize turns raw model output into a validated Analysis.
// Either the whole structure validates or an error wrapping ErrUnparsable
// or ErrInvalid is returned.
func Normalize(raw string) (*Analysis, error) {
	clean := StripFences(raw)
	if !json.Valid([]byte(clean)) {
		return nil, ErrUnparsable
	}

	var ra rawAnalysis
	if err := json.Unmarshal([]byte(clean), &ra); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if ra.Issues == nil {
		return nil, fmt.Errorf("%w: missing issues", ErrInvalid)
	}

	score, err := normalizeScore(ra.SeverityScore)
	if err != nil {
		return nil, err
	}

	issues := make([]models.Issue, 0, len(*ra.Issues))
	for i, ri := range *ra.Issues {
		issue, err := normalizeIssue(ri)
		if err != nil {
			return nil, fmt.Errorf("issues[%d]: %w", i, err)
		}
		issues = append(issues, issue)
	}

	return &Analysis{Issues: issues, SeverityScore: score}, nil
}

func normalizeScore(v *float64) (int, error) {
	if v == nil {
		return 0, fmt.Errorf("%w: missing severityScore", ErrInvalid)
	}
	if *v != math.Trunc(*v) {
		return 0, fmt.Errorf("%w: severityScore %v is not an integer", ErrInvalid, *v)
	}
	if *v < 0 || *v > models.MaxSeverityScore {
		return 0, fmt.Errorf("%w: severityScore %v outside [0,%d]", ErrInvalid, *v, models.MaxSeverityScore)
	}
	return int(*v), nil
}

func normalizeIssue(ri rawIssue) (models.Issue, error) {
	var issue models.Issue

	required := []struct {
		name string
		val  *string
		dst  *string
	}{
		{"title", ri.Title, &issue.Title},
		{"description", ri.Description, &issue.Description},
		{"explanation", ri.Explanation, &issue.Explanation},
	}
	for _, f := range required {
		if f.val == nil || strings.TrimSpace(*f.val) == "" {
			return issue, fmt.Errorf("%w: missing %s", ErrInvalid, f.name)
		}
		*f.dst = *f.val
	}

	if ri.Category == nil {
		return issue, fmt.Errorf("%w: missing category", ErrInvalid)
	}
	c, ok := models.ParseCategory(*ri.Category)
	if !ok {
		return issue, fmt.Errorf("%w: unknown category %q", ErrInvalid, *ri.Category)
	}
	issue.Category = c

	if ri.Severity == nil {
		return issue, fmt.Errorf("%w: missing severity", ErrInvalid)
	}
	sev, ok := models.ParseSeverity(*ri.Severity)
	if !ok {
		return issue, fmt.Errorf("%w: unknown severity %q", ErrInvalid, *ri.Severity)
	}
	issue.Severity = sev

	if ri.LineNumber != nil {
		n := *ri.LineNumber
		if n < 0 || n != math.Trunc(n) {
			return issue, fmt.Errorf("%w: lineNumber %v is not a non-negative integer", ErrInvalid, n)
		}
		if n > maxLineNumber {
			return issue, fmt.Errorf("%w: lineNumber %v out of range", ErrInvalid, n)
		}
		line := int(n)
		issue.LineNumber = &line
	}
	if ri.RefactoredExample != nil {
		issue.RefactoredExample = *ri.RefactoredExample
	}
	return issue, nil
}
