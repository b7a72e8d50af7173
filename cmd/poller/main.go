package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dq-agent/internal/config"
	"dq-agent/internal/domain/model"
	"dq-agent/internal/harvest"
	"dq-agent/internal/infra/glue"
	"dq-agent/internal/infra/logging"
	"dq-agent/internal/infra/metrics"
	"dq-agent/internal/infra/s3store"
	"dq-agent/internal/poller"

	"github.com/rs/zerolog"
)

// The poller runs as a standalone watchdog per job run. It watches a
// single Glue run to completion and reports progress and the final
// result back to the agent service's ingress endpoints.
func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	sessionID := flag.String("session-id", "", "agent session the run belongs to")
	jobName := flag.String("job-name", "", "Glue job name")
	runID := flag.String("run-id", "", "Glue job run id")
	userID := flag.String("user-id", "", "id of the user to notify")
	username := flag.String("username", "", "display name of the user to notify")
	wsURL := flag.String("websocket-url", "", "websocket endpoint hint passed through to events")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *jobName == "" || *runID == "" {
		log.Fatalf("both -job-name and -run-id are required")
	}

	// ---- Logging & metrics ----
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.MustRegister()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		logger.Warn().Msg("shutdown requested, cancelling watch")
		cancel()
	}()

	// ---- AWS clients ----
	glueClient, err := glue.NewClient(ctx, cfg.Store.Region)
	if err != nil {
		logger.Fatal().Err(err).Msg("glue client")
	}
	s3Client, err := s3store.NewClient(ctx, &cfg.Store)
	if err != nil {
		logger.Fatal().Err(err).Msg("s3 client")
	}
	harvester := harvest.NewHarvester(s3Client, cfg.Store.Bucket, cfg.Store.OutputPrefix, logger)

	// ---- Watch the run ----
	runner := poller.NewRunner(
		glue.NewRunStateReader(glueClient),
		harvester,
		cfg.Poller.Interval.Std(), cfg.Poller.ProgressEvery, cfg.Poller.MaxWall.Std(),
		logger,
	)
	sess := poller.Session{
		SessionID:    *sessionID,
		JobName:      *jobName,
		RunID:        *runID,
		User:         model.UserContext{UserID: *userID, Username: *username},
		WebsocketURL: *wsURL,
	}

	ingress := newIngressClient(cfg.Poller.AgentURL, logger)
	result := runner.Run(ctx, sess, func(ev model.JobEvent) {
		ingress.post(ctx, "/system/glue-progress", ev)
	})
	if err := ingress.post(context.Background(), "/system/glue-result", result); err != nil {
		logger.Error().Err(err).Msg("result delivery failed")
		os.Exit(1)
	}
	logger.Info().Str("status", string(result.Status)).Msg("result delivered")
}

// ingressClient posts job events to the agent service.
type ingressClient struct {
	base   string
	client *http.Client
	log    *zerolog.Logger
}

func newIngressClient(base string, logger *zerolog.Logger) *ingressClient {
	compLog := logger.With().Str("component", "IngressClient").Logger()
	return &ingressClient{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
		log:    &compLog,
	}
}

func (c *ingressClient) post(ctx context.Context, path string, ev model.JobEvent) error {
	if c.base == "" {
		c.log.Warn().Str("path", path).Msg("agent_url not configured, dropping event")
		return nil
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("event delivery failed")
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("event rejected")
		return fmt.Errorf("agent returned status %d", resp.StatusCode)
	}
	return nil
}
