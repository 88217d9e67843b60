package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/bpmatch/internal/ai"
	"github.com/spigell/bpmatch/internal/ai/gemini"
	"github.com/spigell/bpmatch/internal/ai/openai"
	"github.com/spigell/bpmatch/internal/classify"
	"github.com/spigell/bpmatch/internal/extract"
	"github.com/spigell/bpmatch/internal/gmail"
	"github.com/spigell/bpmatch/internal/harvest"
	"github.com/spigell/bpmatch/internal/logger"
	"github.com/spigell/bpmatch/internal/match"
	"github.com/spigell/bpmatch/internal/secrets"
	"github.com/spigell/bpmatch/internal/service"
	"github.com/spigell/bpmatch/internal/store"
)

// components holds everything a long-lived command needs.
type components struct {
	config       *Config
	store        *store.Store
	mailbox      *gmail.Client
	orchestrator *harvest.Orchestrator
	service      *service.Service
}

func (c *components) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

func newLogger() *zap.Logger {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return logger
}

// newHarvestLogger returns a logger that also appends to <dir>/harvest_<date>.log.
func newHarvestLogger(dir string) (*zap.Logger, func() error, error) {
	return logger.NewDaily(dir, "harvest", viper.GetBool("json"), viper.GetBool("debug"))
}

func loadConfig() (*Config, error) {
	config, err := getConfig()
	if err != nil {
		return nil, fmt.Errorf("getting a config: %w", err)
	}
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Gmail == nil || config.Harvest == nil || config.Store == nil || config.AI == nil || config.Server == nil {
		return nil, errors.New("config is incomplete")
	}
	if config.Classifier == nil {
		config.Classifier = &ClassifierConfig{}
	}
	return config, nil
}

// build wires all components. Harvest runs log through harvestLog when it is
// set, otherwise through log.
func build(ctx context.Context, config *Config, log, harvestLog *zap.Logger) (*components, error) {
	if harvestLog == nil {
		harvestLog = log
	}


	completer, err := newCompleter(ctx, config.AI, log)
	if err != nil {
		return nil, fmt.Errorf("building ai completer: %w", err)
	}

	mailbox, err := newMailbox(ctx, config.Gmail, log)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, config.Store.Driver, config.Store.DSN, log.Named("store"))
	if err != nil {
		return nil, err
	}

	maxLogLen := 0
	if config.AI.Gemini != nil {
		maxLogLen = config.AI.Gemini.MaxLogLength
	}
	classifier := classify.New(completer, classify.Options{
		JobKeywords:       config.Classifier.JobKeywords,
		CandidateKeywords: config.Classifier.CandidateKeywords,
		MaxLogLength:      maxLogLen,
	}, log.Named("classify"))
	extractor := extract.New(completer, log.Named("extract"), maxLogLen)

	orchestrator := harvest.New(mailbox, st, classifier, extractor, harvest.Config{
		Query:      config.Gmail.Query,
		WindowDays: config.Harvest.WindowDays,
		PageSize:   config.Harvest.PageSize,
		MaxPages:   config.Harvest.MaxPages,
	}, harvestLog.Named("harvest"))

	engine := match.NewEngine(st, extractor)

	return &components{
		config:       config,
		store:        st,
		mailbox:      mailbox,
		orchestrator: orchestrator,
		service:      service.New(mailbox, st, engine, orchestrator, log.Named("service")),
	}, nil
}

func newMailbox(ctx context.Context, cfg *GmailConfig, log *zap.Logger) (*gmail.Client, error) {
	svc, err := gmail.NewGoogleService(ctx, cfg.CredentialsFile, cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("building gmail service: %w", err)
	}

	api := gmail.NewService(svc, cfg.Concurrency, log.Named("gmail"))
	return gmail.New(api, gmail.Options{User: cfg.User, Query: cfg.Query}, log.Named("gmail")), nil
}

func newCompleter(ctx context.Context, cfg *AIConfig, log *zap.Logger) (ai.Completer, error) {
	provider, err := ai.NormalizeProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	switch provider {
	case ai.ProviderOpenAI:
		if cfg.OpenAI == nil {
			return nil, errors.New("openai configuration is required when ai.provider is openai")
		}

		// Local OpenAI-compatible servers usually accept any key.
		apiKey, err := secrets.Optional(secrets.Source{
			Name:  "openai api key",
			Value: cfg.OpenAI.APIKey,
			File:  cfg.OpenAI.APIKeyFile,
			Env:   "OPENAI_API_KEY",
		})
		if err != nil {
			return nil, err
		}

		return openai.New(openai.Options{
			APIKey:       apiKey,
			BaseURL:      cfg.OpenAI.BaseURL,
			Model:        cfg.OpenAI.Model,
			MaxLogLength: cfg.OpenAI.MaxLogLength,
		}, log.Named("ai"))
	default:
		if cfg.Gemini == nil {
			return nil, errors.New("gemini configuration is required when ai.provider is gemini")
		}

		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: cfg.Gemini.APIKey,
			File:  cfg.Gemini.APIKeyFile,
			Env:   "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
		}

		return gemini.NewGenerator(ctx, gemini.Options{
			APIKey:       apiKey,
			Model:        cfg.Gemini.Model,
			MaxRetries:   cfg.Gemini.MaxRetries,
			MaxLogLength: cfg.Gemini.MaxLogLength,
		}, log.Named("ai"))
	}
}
