package main

import (
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kioku/internal/cli"
	"github.com/hyperjump/kioku/internal/models"
	kerr "github.com/hyperjump/kioku/pkg/errors"
	"github.com/hyperjump/kioku/pkg/utils"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [flags] <prompt>",
		Short: "Answer a prompt from the cache or the model",
		Long: `Answer a prompt from the cache, calling the model on a miss.

The prompt is all remaining arguments joined by spaces. With --server set to an empty string the
command opens the store directly instead of calling a running server.

Examples:
  kioku query what is a semantic cache
  kioku query --image https://example.com/cat.png "describe this picture"
  kioku query --output json --server "" what is a semantic cache`,
		Args: cobra.MinimumNArgs(1),
		RunE: runQuery,
	}
	cmd.Flags().String("image", "", "image path or URL sent with the prompt")
	cmd.Flags().String("server", defaultServerURL, "server URL (empty = use the store directly)")
	cmd.Flags().StringP("output", "o", "text", "output format: text or json")
	return cmd
}

// buildPrompt joins positional args so multi-word prompts work with or without quotes.
func buildPrompt(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runQuery(cmd *cobra.Command, args []string) error {
	image, _ := cmd.Flags().GetString("image")
	serverURL, _ := cmd.Flags().GetString("server")
	outputFlag, _ := cmd.Flags().GetString("output")
	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	in := &models.QueryInput{Text: buildPrompt(args), Image: image}
	if in.Text == "" {
		return kerr.New(kerr.CodeCLIInputInvalid, "prompt must not be empty")
	}

	var out models.QueryOutput
	if serverURL != "" {
		if err := newAPIClient(serverURL).do(http.MethodPost, "/api/v1/query", in, &out); err != nil {
			return err
		}
		return cli.WriteQueryResult(cmd.OutOrStdout(), &out, format)
	}

	cfg, _, err := loadConfigFromFlags(cmd)
	if err != nil {
		return err
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	components, err := initializeComponents(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = components.Close() }()

	result, err := components.Engine.Query(cmd.Context(), in)
	if err != nil {
		return err
	}
	return cli.WriteQueryResult(cmd.OutOrStdout(), result, format)
}
