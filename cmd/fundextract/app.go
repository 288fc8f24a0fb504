package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"fund_extractor/pkg/core/agent"
	"fund_extractor/pkg/core/config"
	"fund_extractor/pkg/core/logging"
	"fund_extractor/pkg/core/metrics"
	"fund_extractor/pkg/core/parser"
	"fund_extractor/pkg/core/pipeline"
	"fund_extractor/pkg/core/prompt"
	"fund_extractor/pkg/core/schema"
	"fund_extractor/pkg/core/store"
)

// app is the process-wide object graph, built once per command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	agents    *agent.Manager
	store     store.Store
	metrics   *metrics.Metrics
	processor *pipeline.Processor
}

func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	appLog := logging.Named(logger, logging.App)
	procLog := logging.Named(logger, logging.Process)

	models, err := config.LoadModels(cfg.LLM.ModelsFile)
	if err != nil {
		return nil, err
	}
	agents, err := agent.NewManager(models, cfg.LLM.Limits(), appLog)
	if err != nil {
		return nil, err
	}
	appLog.Info("LLM providers configured",
		zap.String("active", agents.GetActiveProvider()), zap.Strings("available", agents.ProviderNames()))

	builder, err := newBuilder(cfg.Prompts.Dir, appLog)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store, logging.Named(logger, logging.Database))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	m := metrics.New()
	proc := pipeline.NewProcessor(builder, agents, parser.New(schema.Default(), cfg.Parser, procLog), procLog)
	proc.SetStore(st)
	proc.SetMetrics(m)

	return &app{cfg: cfg, logger: logger, agents: agents, store: st, metrics: m, processor: proc}, nil
}

// newBuilder uses the embedded prompts, overlaid by dir when set.
func newBuilder(dir string, logger *zap.Logger) (*prompt.Builder, error) {
	if dir == "" {
		return prompt.NewFundPortfolioBuilder()
	}
	reg := prompt.NewRegistry()
	if err := prompt.LoadEmbedded(reg); err != nil {
		return nil, err
	}
	if err := prompt.LoadFromDirectory(reg, dir, logger); err != nil {
		return nil, err
	}
	logger.Info("Loaded prompt library", zap.String("dir", dir), zap.Int("prompts", reg.Count()))
	return prompt.NewBuilder(reg, prompt.FundPortfolioID, schema.Default())
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Closing store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
