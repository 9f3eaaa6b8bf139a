// Package server exposes the Slack webhook HTTP surface: Events API
// callbacks, interactivity payloads, and slash commands. Handlers verify
// the request signature, acknowledge within Slack's timeout window, and
// hand the real work to detached pipeline tasks.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack"
	"github.com/zulandar/recap/internal/conversation"
)

// defaultAckTimeout bounds the synchronous calls made inside an
// interaction acknowledgment window (modal opens); Slack expires the
// trigger after roughly three seconds.
const defaultAckTimeout = 1500 * time.Millisecond

// Pipeline runs summarization requests. Implemented by relay.Orchestrator.
type Pipeline interface {
	Run(ctx context.Context, ref conversation.Ref) error
	RunRecent(ctx context.Context, ref conversation.Ref) error
}

// ViewClient is the subset of the Slack API used for modals and the home
// tab.
type ViewClient interface {
	OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
	PublishViewContext(ctx context.Context, userID string, view slack.HomeTabViewRequest, hash string) (*slack.ViewResponse, error)
}

// Notifier sends best-effort ephemeral notices for input-shape failures.
type Notifier interface {
	PostEphemeral(ctx context.Context, channelID, userID, text, replyTo string) error
}

// Server is the webhook HTTP server.
type Server struct {
	pipeline      Pipeline
	views         ViewClient
	notifier      Notifier
	signingSecret string
	port          int
	ackTimeout    time.Duration
	out           io.Writer
	verbose       bool
}

// Opts holds parameters for creating a Server.
type Opts struct {
	Pipeline      Pipeline
	Views         ViewClient
	Notifier      Notifier
	SigningSecret string
	Port          int       // defaults to 8080
	Out           io.Writer // defaults to os.Stdout
	Verbose       bool
}

// New creates a Server.
func New(opts Opts) (*Server, error) {
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("server: pipeline is required")
	}
	if opts.Views == nil {
		return nil, fmt.Errorf("server: view client is required")
	}
	if opts.SigningSecret == "" {
		return nil, fmt.Errorf("server: signing secret is required")
	}
	port := opts.Port
	if port <= 0 {
		port = 8080
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Server{
		pipeline:      opts.Pipeline,
		views:         opts.Views,
		notifier:      opts.Notifier,
		signingSecret: opts.SigningSecret,
		port:          port,
		ackTimeout:    defaultAckTimeout,
		out:           out,
		verbose:       opts.Verbose,
	}, nil
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	verified := router.Group("/slack", s.verifySignature())
	verified.POST("/events", s.handleEvents)
	verified.POST("/interactions", s.handleInteractions)
	verified.POST("/commands", s.handleCommand)

	return router
}

// Start runs the server. It blocks until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(s.out, "recap listening on :%d\n", s.port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}
