package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kioku/internal/cli"
	"github.com/hyperjump/kioku/internal/models"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show store, policy and per-modality index state",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}
	cmd.Flags().String("server", defaultServerURL, "server URL")
	cmd.Flags().StringP("output", "o", "text", "output format: text or json")
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	serverURL, _ := cmd.Flags().GetString("server")
	outputFlag, _ := cmd.Flags().GetString("output")
	format, err := cli.ParseOutputFormat(outputFlag)
	if err != nil {
		return err
	}
	var status models.StatusResponse
	if err := newAPIClient(serverURL).do(http.MethodGet, "/api/v1/status", nil, &status); err != nil {
		return err
	}
	return cli.WriteStatus(cmd.OutOrStdout(), &status, format)
}
