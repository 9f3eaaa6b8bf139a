package main

import (
	"fmt"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"github.com/zulandar/recap/internal/config"
)

func newDigestCmd() *cobra.Command {
	var (
		configPath string
		channelID  string
	)

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Post a one-off channel digest",
		Long:  "Summarizes the channel's recent history and posts the digest to it, without starting the server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDigest(cmd, configPath, channelID)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "recap.yaml", "path to config file")
	cmd.Flags().StringVar(&channelID, "channel", "", "channel ID to digest (required)")
	cmd.MarkFlagRequired("channel")
	return cmd
}

func runDigest(cmd *cobra.Command, configPath, channelID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	api := slack.New(cfg.Slack.BotToken)
	orch, _, err := buildPipeline(cfg, api, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	if err := orch.Digest(cmd.Context(), channelID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "digest posted to %s\n", channelID)
	return nil
}
