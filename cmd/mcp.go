package cmd

import (
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joescharf/codelens/internal/mcp"
)

var mcpUser string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for editor and agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client submit code for review and read stored reviews
as a single local user. Configure the client with:

  {
    "mcpServers": {
      "codelens": { "command": "codelens", "args": ["mcp"] }
    }
  }

Available tools: codelens_submit_review, codelens_list_reviews,
codelens_get_review`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals()...)
		defer stop()

		svc, err := newReviewService(ctx)
		if err != nil {
			return err
		}

		owner := reviewOwner(mcpUser)
		logger.Info("mcp server starting", zap.String("uid", owner.UID))

		srv := mcp.NewServer(svc, owner, buildVersion, logger)
		return srv.ServeStdio(ctx)
	},
}

func init() {
	mcpCmd.Flags().StringVarP(&mcpUser, "user", "u", "", "User id to act as (default: auth.stub_uid)")
	rootCmd.AddCommand(mcpCmd)
}
