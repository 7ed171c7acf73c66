package stats

import (
	"math"

	"github.com/joescharf/codelens/internal/models"
)

// RecentLimit is how many reviews Summary.RecentReviews holds.
const RecentLimit = 5

// Summary aggregates one owner's reviews.
type Summary struct {
	TotalReviews         int                     `json:"totalReviews"`
	AvgSeverityScore     int                     `json:"avgSeverityScore"`
	ImprovementTrend     int                     `json:"improvementTrend"`
	IssuesByCategory     map[models.Category]int `json:"issuesByCategory"`
	SeverityDistribution map[models.Severity]int `json:"severityDistribution"`
	RecentReviews        []*models.Review        `json:"recentReviews"`
}

// Summarize computes a Summary from reviews ordered newest first.
func Summarize(reviews []*models.Review) *Summary {
	s := &Summary{
		TotalReviews:         len(reviews),
		IssuesByCategory:     make(map[models.Category]int, len(models.Categories)),
		SeverityDistribution: make(map[models.Severity]int, len(models.Severities)),
		RecentReviews:        make([]*models.Review, 0, RecentLimit),
	}
	for _, c := range models.Categories {
		s.IssuesByCategory[c] = 0
	}
	for _, sev := range models.Severities {
		s.SeverityDistribution[sev] = 0
	}

	for _, r := range reviews {
		for _, issue := range r.Issues {
			s.IssuesByCategory[issue.Category]++
			s.SeverityDistribution[issue.Severity]++
		}
	}

	s.AvgSeverityScore = avgScore(reviews)
	s.ImprovementTrend = trend(reviews)

	n := min(len(reviews), RecentLimit)
	s.RecentReviews = append(s.RecentReviews, reviews[:n]...)
	return s
}

// avgScore returns the rounded mean score, 0 for no reviews.
func avgScore(reviews []*models.Review) int {
	if len(reviews) == 0 {
		return 0
	}
	total := 0
	for _, r := range reviews {
		total += r.SeverityScore
	}
	return int(math.Round(float64(total) / float64(len(reviews))))
}

// trend compares the newer half of reviews against the older half.
// Positive means scores are improving.
func trend(reviews []*models.Review) int {
	if len(reviews) < 2 {
		return 0
	}
	half := len(reviews) / 2
	newer := reviews[:half]
	older := reviews[len(reviews)-half:]
	return avgScore(newer) - avgScore(older)
}
