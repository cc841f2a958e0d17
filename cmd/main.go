package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"taskchat/internal/clock"
	"taskchat/internal/config"
	"taskchat/internal/conversation"
	"taskchat/internal/integrations/a2a"
	"taskchat/internal/integrations/paramstore"
	"taskchat/internal/metrics"
	"taskchat/internal/poller"
	"taskchat/internal/repository"
	"taskchat/internal/tui"
	"taskchat/internal/usecase"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("taskchat exited", "err", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	// ---- Configuration (read only here) ----
	flags := config.NewFlags("taskchat")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	cfg, err := config.Load(flags.ConfigPath, flags.EnvFile, os.LookupEnv)
	if err != nil {
		return err
	}
	flags.Apply(&cfg)

	var awsCfg *awsAPIs
	if cfg.ParamPrefix != "" || strings.EqualFold(strings.TrimSpace(cfg.StorageBackend), config.BackendDynamoDB) {
		if awsCfg, err = loadAWS(ctx); err != nil {
			return err
		}
	}
	if cfg.ParamPrefix != "" {
		params, err := paramstore.New(awsCfg.ssm)
		if err != nil {
			return fmt.Errorf("create SSM client: %w", err)
		}
		if err := config.ApplyRemote(ctx, &cfg, params); err != nil {
			return err
		}
		flags.Apply(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ---- Logging (the terminal belongs to the UI) ----
	closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}
	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server stopped", "addr", cfg.MetricsAddr, "err", err)
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	// ---- Persistence ----
	kv, closeKV, err := openStorage(cfg, awsCfg)
	if err != nil {
		return err
	}
	defer closeKV()
	persister, err := conversation.NewKVPersister(kv, cfg.StorageNamespace)
	if err != nil {
		return err
	}
	store, err := conversation.Open(ctx, persister, conversation.WithNamePrefix(cfg.NamePrefix))
	if err != nil {
		return err
	}

	// ---- Lifecycle ----
	backend, err := newBackend(cfg)
	if err != nil {
		return err
	}
	polls, err := poller.New(clock.Real(), cfg.PollInterval, m)
	if err != nil {
		return err
	}
	client, err := usecase.NewClient(backend, store, polls,
		usecase.WithMetrics(m),
		usecase.WithMaxPollAttempts(cfg.MaxPollAttempts),
	)
	if err != nil {
		return err
	}
	defer client.Close()
	client.Resume(ctx)

	slog.Info("taskchat started",
		"agent_url", cfg.AgentURL,
		"dialect", cfg.Dialect,
		"storage", cfg.StorageBackend,
		"poll_interval", cfg.PollInterval,
	)

	// ---- UI ----
	model := tui.New(ctx, client, store, title(cfg))
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

type awsAPIs struct {
	ssm    *awsssm.Client
	dynamo *awsdynamodb.Client
}

func loadAWS(ctx context.Context) (*awsAPIs, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &awsAPIs{
		ssm:    awsssm.NewFromConfig(cfg),
		dynamo: awsdynamodb.NewFromConfig(cfg),
	}, nil
}

func setupLogging(cfg config.Config) (func(), error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})))
	return func() { _ = f.Close() }, nil
}

func metricsMux(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

func openStorage(cfg config.Config, aws *awsAPIs) (repository.KeyValue, func(), error) {
	switch cfg.StorageBackend {
	case config.BackendPebble:
		s, err := repository.OpenPebble(cfg.StoragePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { closeStore("pebble", s.Close) }, nil
	case config.BackendDynamoDB:
		s, err := repository.NewDynamoStore(aws.dynamo, cfg.StateTable)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		s, err := repository.OpenBolt(cfg.StoragePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { closeStore("bolt", s.Close) }, nil
	}
}

func closeStore(name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		slog.Error("failed to close storage", "backend", name, "err", err)
	}
}

func newBackend(cfg config.Config) (usecase.TaskBackend, error) {
	opt := a2a.WithTimeout(cfg.RequestTimeout)
	if cfg.Dialect == config.DialectREST {
		return a2a.NewRESTClient(cfg.AgentURL, cfg.AppName, opt)
	}
	return a2a.NewJSONRPCClient(cfg.AgentURL, opt)
}

func title(cfg config.Config) string {
	if cfg.Dialect == config.DialectREST {
		return cfg.AppName
	}
	return "Personal Helper"
}
