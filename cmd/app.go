package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/lehigh-university-libraries/shelfwise/internal/cataloging"
	"github.com/lehigh-university-libraries/shelfwise/internal/collection"
	"github.com/lehigh-university-libraries/shelfwise/internal/config"
	"github.com/lehigh-university-libraries/shelfwise/internal/covers"
	"github.com/lehigh-university-libraries/shelfwise/internal/storage"
	"golang.org/x/text/language"
)

// app bundles the wired services a command needs
type app struct {
	cfg     config.Config
	kv      storage.KV
	books   *collection.Store
	service *cataloging.Service
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	kv, err := storage.Open(storage.Options{
		Backend:       cfg.Storage.Backend,
		Path:          cfg.Storage.Path,
		RedisAddr:     cfg.Storage.RedisAddr,
		RedisPassword: cfg.Storage.RedisPassword,
		RedisDB:       cfg.Storage.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	locale, err := language.Parse(cfg.Locale)
	if err != nil {
		slog.Warn("Invalid locale, falling back to English", "locale", cfg.Locale, "err", err)
		locale = language.English
	}

	books, err := collection.Open(ctx, kv, cfg.Storage.Key, collection.WithLocale(locale))
	if err != nil {
		closeStorage(kv)
		return nil, err
	}

	coverClient, err := covers.New(covers.Settings{
		Provider:     cfg.Cover.Provider,
		Model:        cfg.Cover.Model,
		Temperature:  cfg.Cover.Temperature,
		Timeout:      cfg.Cover.Timeout,
		GeminiAPIKey: cfg.Cover.GeminiAPIKey,
		OpenAIAPIKey: cfg.Cover.OpenAIAPIKey,
	})
	if err != nil {
		closeStorage(kv)
		return nil, err
	}

	slog.Debug("Shelfwise configured",
		"storage", cfg.Storage.Backend,
		"key", cfg.Storage.Key,
		"provider", cfg.Cover.Provider,
		"books", books.Len())

	return &app{
		cfg:     cfg,
		kv:      kv,
		books:   books,
		service: cataloging.NewService(coverClient),
	}, nil
}

func (a *app) Close() {
	closeStorage(a.kv)
}

func closeStorage(kv storage.KV) {
	if closer, ok := kv.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			slog.Error("Failed to close storage", "err", err)
		}
	}
}
