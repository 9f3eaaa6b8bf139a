package main

import (
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"github.com/zulandar/recap/internal/config"
	"github.com/zulandar/recap/internal/conversation"
	"github.com/zulandar/recap/internal/deliver"
	"github.com/zulandar/recap/internal/digest"
	"github.com/zulandar/recap/internal/relay"
	"github.com/zulandar/recap/internal/server"
	"github.com/zulandar/recap/internal/summarizer"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		Long:  "Starts the HTTP server that receives Slack events, interactions, and slash commands, plus any configured digest schedules.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "recap.yaml", "path to config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	out := cmd.OutOrStdout()
	api := slack.New(cfg.Slack.BotToken)

	orch, poster, err := buildPipeline(cfg, api, out)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Opts{
		Pipeline:      orch,
		Views:         api,
		Notifier:      poster,
		SigningSecret: cfg.Slack.SigningSecret,
		Port:          cfg.Server.Port,
		Out:           out,
		Verbose:       cfg.Verbose,
	})
	if err != nil {
		return err
	}

	scheduler, err := digest.New(digest.Opts{
		Entries: cfg.Digests,
		Run:     orch.Digest,
		Out:     out,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)
	defer scheduler.Wait()

	return srv.Start(ctx)
}

// buildPipeline wires the Slack API client through the resolver,
// summarizer, and poster into an orchestrator.
func buildPipeline(cfg *config.Config, api *slack.Client, out io.Writer) (*relay.Orchestrator, *deliver.Poster, error) {
	resolver, err := conversation.NewResolver(conversation.ResolverOpts{
		Client:  api,
		Out:     out,
		Verbose: cfg.Verbose,
	})
	if err != nil {
		return nil, nil, err
	}

	summarizerClient, err := summarizer.New(
		&http.Client{Timeout: time.Duration(cfg.Summarizer.TimeoutSeconds) * time.Second},
		cfg.Summarizer.URL,
		cfg.Summarizer.APIKey,
	)
	if err != nil {
		return nil, nil, err
	}

	poster, err := deliver.NewPoster(api)
	if err != nil {
		return nil, nil, err
	}

	orch, err := relay.New(relay.Opts{
		Resolver:   resolver,
		Client:     api,
		Summarizer: summarizerClient,
		Poster:     poster,
		Out:        out,
		Verbose:    cfg.Verbose,
	})
	if err != nil {
		return nil, nil, err
	}
	return orch, poster, nil
}
