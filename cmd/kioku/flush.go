package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

func newFlushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flush <modality>",
		Short: "Delete every cached record of a modality",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serverURL, _ := cmd.Flags().GetString("server")
			path := "/api/v1/modalities/" + url.PathEscape(args[0])
			if err := newAPIClient(serverURL).do(http.MethodDelete, path, nil, nil); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Flushed modality %s\n", args[0])
			return err
		},
	}
	cmd.Flags().String("server", defaultServerURL, "server URL")
	return cmd
}

func newReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile <modality>",
		Short: "Rebuild a modality's index from the store, dropping expired entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serverURL, _ := cmd.Flags().GetString("server")
			path := "/api/v1/modalities/" + url.PathEscape(args[0]) + "/reconcile"
			var out struct {
				Removed int `json:"removed"`
			}
			if err := newAPIClient(serverURL).do(http.MethodPost, path, nil, &out); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Reconciled modality %s: %d stale point(s) removed\n", args[0], out.Removed)
			return err
		},
	}
	cmd.Flags().String("server", defaultServerURL, "server URL")
	return cmd
}
