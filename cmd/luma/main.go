// Command luma runs the agent framework from the terminal.
//
//	luma ask "question"            one-shot reasoning run
//	luma repl                      interactive session
//	luma plan "task"               print a task decomposition
//	luma version                   show version information
//
// All subcommands accept -config pointing at a YAML file; every setting
// can also be overridden through LUMA_* environment variables.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lumaflow/luma/agent/conversation"
	"github.com/lumaflow/luma/agent/coordinator"
	"github.com/lumaflow/luma/agent/memory"
	"github.com/lumaflow/luma/agent/planner"
	"github.com/lumaflow/luma/agent/reactor"
	"github.com/lumaflow/luma/config"
	"github.com/lumaflow/luma/internal/metrics"
	"github.com/lumaflow/luma/llm"
	"github.com/lumaflow/luma/llm/retry"
	"github.com/lumaflow/luma/providers/openai"
	"github.com/lumaflow/luma/tools"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ask":
		runAsk(os.Args[2:])
	case "repl":
		runREPL(os.Args[2:])
	case "plan":
		runPlan(os.Args[2:])
	case "version":
		fmt.Printf("luma %s (built %s)\n", version, buildTime)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: luma <command> [flags]

Commands:
  ask "question"   run the agent once and print the answer
  repl             interactive agent session
  plan "task"      decompose a task into an execution plan
  version          show version information

Flags:
  -config path     YAML configuration file (default: luma.yaml)`)
}

type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	provider  llm.Provider
	registry  *tools.Registry
	memory    *memory.Manager
	store     memory.Store
	collector *metrics.Collector
}

func setup(configPath string) (*app, error) {
	cfg, err := config.NewLoader().WithConfigPath(configPath).Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	provider := retry.Wrap(
		openai.New(openai.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Timeout: cfg.LLM.Timeout,
		}, logger),
		retry.Policy{MaxAttempts: cfg.LLM.MaxRetries, Delay: cfg.LLM.RetryDelay},
		logger,
	)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector("luma")
		serveMetrics(cfg.Metrics.Port, logger)
	}

	registry := tools.NewRegistry(logger)
	registry.SetMetrics(collector)
	registry.MustRegister(tools.Calculator())
	fileTools, err := tools.NewFileTools("")
	if err != nil {
		return nil, err
	}
	if err := fileTools.RegisterAll(registry); err != nil {
		return nil, err
	}

	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	mgr := memory.NewManager(store, memory.Config{
		WorkingCapacity:      cfg.Memory.WorkingCapacity,
		PromoteThreshold:     cfg.Memory.PromoteThreshold,
		ConsolidateThreshold: cfg.Memory.ConsolidateThreshold,
		Metrics:              collector,
	}, memory.NewLLMScorer(provider, cfg.LLM.Model, logger), logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		provider:  provider,
		registry:  registry,
		memory:    mgr,
		store:     store,
		collector: collector,
	}, nil
}

func serveMetrics(port int, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warn("metrics endpoint stopped", zap.Error(err))
		}
	}()
	logger.Info("metrics endpoint listening", zap.String("addr", addr))
}

func openStore(cfg *config.Config, logger *zap.Logger) (memory.Store, error) {
	switch cfg.Memory.Backend {
	case "redis":
		return memory.NewRedisStore(&redis.Options{
			Addr:     cfg.Memory.RedisAddr,
			Password: cfg.Memory.RedisPassword,
			DB:       cfg.Memory.RedisDB,
		}, logger)
	case "", "sqlite":
		return memory.NewSQLiteStore(cfg.Memory.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Memory.Backend)
	}
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing memory store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func (a *app) newReactor() *reactor.Reactor {
	return reactor.New(a.provider, a.registry, reactor.Config{
		Model:            a.cfg.LLM.Model,
		MaxIterations:    a.cfg.Agent.MaxIterations,
		MaxTokens:        a.cfg.Agent.MaxTokens,
		ObservationLimit: a.cfg.Agent.ObservationLimit,
		SystemPrompt:     a.cfg.Agent.SystemPrompt,
	}, a.logger,
		reactor.WithConversation(conversation.NewState(a.cfg.Conversation.MaxHistory)),
		reactor.WithMemory(a.memory),
		reactor.WithMetrics(a.collector),
	)
}

func runAsk(args []string) {
	a, rest := mustSetup(args)
	defer a.close()
	if len(rest) < 1 {
		fmt.Fprintln(os.Stderr, `usage: luma ask [flags] "question"`)
		os.Exit(1)
	}

	ctx := signalContext()
	result, err := a.newReactor().Run(ctx, strings.Join(rest, " "))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(result.Response)
}

func runREPL(args []string) {
	a, _ := mustSetup(args)
	defer a.close()

	ctx := signalContext()
	r := a.newReactor()
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("luma interactive session. Type 'exit' to quit, '/remember <text>' to store a memory, '/recall <query>' to search.")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			return
		case strings.HasPrefix(line, "/remember "):
			id, err := a.memory.Remember(ctx, strings.TrimPrefix(line, "/remember "), memory.RememberOptions{})
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Printf("stored %s\n", id)
		case strings.HasPrefix(line, "/recall "):
			hits, err := a.memory.Retrieve(ctx, strings.TrimPrefix(line, "/recall "), 5)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			for _, rec := range hits {
				fmt.Printf("[%.2f] %s\n", rec.Importance, rec.Content)
			}
		default:
			result, err := r.Run(ctx, line)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			fmt.Println(result.Response)
		}
	}
}

func runPlan(args []string) {
	a, rest := mustSetup(args)
	defer a.close()
	if len(rest) < 1 {
		fmt.Fprintln(os.Stderr, `usage: luma plan [flags] "task"`)
		os.Exit(1)
	}

	ctx := signalContext()
	p := planner.New(a.provider, a.cfg.LLM.Model, a.logger)
	plan := p.CreatePlan(ctx, strings.Join(rest, " "), []planner.Capability{
		{Name: "default", Description: "general purpose agent"},
	})
	fmt.Print(coordinator.Summary(plan))
}

// mustSetup parses flags, builds the app and returns the remaining
// positional arguments.
func mustSetup(args []string) (*app, []string) {
	fs := flag.NewFlagSet("luma", flag.ExitOnError)
	configPath := fs.String("config", "luma.yaml", "configuration file")
	_ = fs.Parse(args)

	a, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	return a, fs.Args()
}

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx
}
