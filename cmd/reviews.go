package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/codelens/internal/apperr"
	"github.com/joescharf/codelens/internal/llm"
	"github.com/joescharf/codelens/internal/models"
	"github.com/joescharf/codelens/internal/output"
	"github.com/joescharf/codelens/internal/review"
	"github.com/joescharf/codelens/internal/stats"
)

var (
	reviewUser     string
	reviewLanguage string
	reviewContext  string
)

var reviewsCmd = &cobra.Command{
	Use:     "reviews",
	Aliases: []string{"review"},
	Short:   "Submit and browse code reviews",
	Long:    "Run the review pipeline locally and browse stored reviews for one user.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReadService(func(svc *review.Service) error {
			return reviewsListRun(cmd.Context(), svc, reviewOwner(reviewUser))
		})
	},
}

var reviewsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List reviews, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReadService(func(svc *review.Service) error {
			return reviewsListRun(cmd.Context(), svc, reviewOwner(reviewUser))
		})
	},
}

var reviewsShowCmd = &cobra.Command{
	Use:   "show <review-id>",
	Short: "Show review details",
	Long:  "Show a review and its issues. The id may be a unique prefix.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReadService(func(svc *review.Service) error {
			return reviewsShowRun(cmd.Context(), svc, reviewOwner(reviewUser), args[0])
		})
	},
}

var reviewsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show review statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReadService(func(svc *review.Service) error {
			return reviewsStatsRun(cmd.Context(), svc, reviewOwner(reviewUser))
		})
	},
}

var reviewsSubmitCmd = &cobra.Command{
	Use:   "submit [file]",
	Short: "Review a file (or stdin) and store the result",
	Long: `Submit code for review. Reads <file>, or stdin when no file or "-" is given.
With --dry-run the prompt is printed and no model call is made.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "-"
		if len(args) > 0 {
			path = args[0]
		}
		code, err := readSource(path)
		if err != nil {
			return err
		}
		sub := review.Submission{Code: code, Language: reviewLanguage, Context: reviewContext}

		if dryRun {
			return reviewsSubmitDryRun(sub)
		}

		svc, err := newReviewService(cmd.Context())
		if err != nil {
			return err
		}
		return reviewsSubmitRun(cmd.Context(), svc, reviewOwner(reviewUser), sub)
	},
}

func init() {
	reviewsCmd.PersistentFlags().StringVarP(&reviewUser, "user", "u", "", "User id to act as (default: auth.stub_uid)")

	reviewsSubmitCmd.Flags().StringVarP(&reviewLanguage, "language", "l", "", "Programming language of the code")
	reviewsSubmitCmd.Flags().StringVarP(&reviewContext, "context", "c", "", "Where the code runs (Frontend, Backend, API, ...)")

	reviewsCmd.AddCommand(reviewsListCmd)
	reviewsCmd.AddCommand(reviewsShowCmd)
	reviewsCmd.AddCommand(reviewsStatsCmd)
	reviewsCmd.AddCommand(reviewsSubmitCmd)
	rootCmd.AddCommand(reviewsCmd)
}

// reviewOwner is the identity local commands act as: uid, or the
// configured stub identity when uid is empty.
func reviewOwner(uid string) models.Identity {
	if uid == "" {
		uid = viper.GetString("auth.stub_uid")
	}
	return models.Identity{UID: uid}
}

// withReadService runs fn with a service that can read but not generate.
func withReadService(fn func(*review.Service) error) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	return fn(review.NewService(nil, s, logger))
}

func readSource(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	return string(data), nil
}

// cliError turns a pipeline error into its client-safe message.
func cliError(err error) error {
	if apperr.KindOf(err) == apperr.KindInternal {
		return err
	}
	return fmt.Errorf("%s", apperr.Message(err))
}

func reviewsListRun(ctx context.Context, svc *review.Service, owner models.Identity) error {
	reviews, err := svc.List(ctx, owner)
	if err != nil {
		return cliError(err)
	}

	if len(reviews) == 0 {
		ui.Info("No reviews found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Language", "Context", "Score", "Issues", "Created"})
	for _, r := range reviews {
		_ = table.Append([]string{
			shortID(r.ID),
			r.Language,
			r.Context,
			output.ScoreColor(r.SeverityScore),
			fmt.Sprintf("%d", len(r.Issues)),
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	_ = table.Render()
	return nil
}

func reviewsShowRun(ctx context.Context, svc *review.Service, owner models.Identity, id string) error {
	r, err := findReview(ctx, svc, owner, id)
	if err != nil {
		return err
	}
	printReview(r)
	return nil
}

// findReview resolves an exact id or a unique id prefix within owner's reviews.
func findReview(ctx context.Context, svc *review.Service, owner models.Identity, id string) (*models.Review, error) {
	// Try exact match first
	if r, err := svc.Get(ctx, owner, id); err == nil {
		return r, nil
	} else if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, cliError(err)
	}

	reviews, err := svc.List(ctx, owner)
	if err != nil {
		return nil, cliError(err)
	}

	upper := strings.ToUpper(id)
	var matches []*models.Review
	for _, r := range reviews {
		if strings.HasPrefix(r.ID, upper) {
			matches = append(matches, r)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("review not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous review ID %s: matches %d reviews", id, len(matches))
	}
}

func printReview(r *models.Review) {
	fmt.Fprintf(ui.Out, "%s  %s / %s\n", output.Cyan(shortID(r.ID)), r.Language, r.Context)
	fmt.Fprintf(ui.Out, "  Score:      %s\n", output.ScoreColor(r.SeverityScore))
	fmt.Fprintf(ui.Out, "  Issues:     %d\n", len(r.Issues))
	fmt.Fprintf(ui.Out, "  Created:    %s\n", r.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(ui.Out, "  Full ID:    %s\n", r.ID)

	for i, is := range r.Issues {
		fmt.Fprintln(ui.Out)
		line := ""
		if is.LineNumber != nil {
			line = fmt.Sprintf(" (line %d)", *is.LineNumber)
		}
		fmt.Fprintf(ui.Out, "%d. [%s] %s%s\n", i+1, output.SeverityColor(string(is.Severity)), is.Title, line)
		fmt.Fprintf(ui.Out, "   Category:   %s\n", is.Category)
		fmt.Fprintf(ui.Out, "   %s\n", is.Description)
		fmt.Fprintf(ui.Out, "   Why:        %s\n", is.Explanation)
		if is.RefactoredExample != "" {
			fmt.Fprintln(ui.Out, "   Suggested:")
			for _, l := range strings.Split(is.RefactoredExample, "\n") {
				fmt.Fprintf(ui.Out, "     %s\n", l)
			}
		}
	}
}

func reviewsStatsRun(ctx context.Context, svc *review.Service, owner models.Identity) error {
	reviews, err := svc.List(ctx, owner)
	if err != nil {
		return cliError(err)
	}
	s := stats.Summarize(reviews)

	fmt.Fprintf(ui.Out, "Reviews:        %d\n", s.TotalReviews)
	fmt.Fprintf(ui.Out, "Average score:  %s\n", output.ScoreColor(s.AvgSeverityScore))
	fmt.Fprintf(ui.Out, "Trend:          %+d\n", s.ImprovementTrend)

	fmt.Fprintln(ui.Out)
	table := ui.Table([]string{"Category", "Issues"})
	for _, c := range models.Categories {
		_ = table.Append([]string{string(c), fmt.Sprintf("%d", s.IssuesByCategory[c])})
	}
	_ = table.Render()

	fmt.Fprintln(ui.Out)
	table = ui.Table([]string{"Severity", "Issues"})
	for _, sev := range models.Severities {
		_ = table.Append([]string{output.SeverityColor(string(sev)), fmt.Sprintf("%d", s.SeverityDistribution[sev])})
	}
	_ = table.Render()
	return nil
}

func reviewsSubmitDryRun(sub review.Submission) error {
	prompt, err := llm.BuildPrompt(sub.Code, sub.Language, sub.Context)
	if err != nil {
		return cliError(err)
	}
	ui.DryRunMsg("Would send prompt to %s", viper.GetString("model.provider"))
	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, prompt)
	return nil
}

func reviewsSubmitRun(ctx context.Context, svc *review.Service, owner models.Identity, sub review.Submission) error {
	ui.VerboseLog("Submitting %d bytes for review as %s", len(sub.Code), owner.UID)

	r, err := svc.Submit(ctx, owner, sub)
	if err != nil {
		return cliError(err)
	}

	ui.Success("Review %s stored", shortID(r.ID))
	fmt.Fprintln(ui.Out)
	printReview(r)
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
