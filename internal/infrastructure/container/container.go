// Package container wires the application together with Uber FX.
package container

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nutrilens/v1/internal/application/analysis"
	"github.com/nutrilens/v1/internal/application/chat"
	"github.com/nutrilens/v1/internal/application/mealplan"
	"github.com/nutrilens/v1/internal/application/pricing"
	"github.com/nutrilens/v1/internal/infrastructure/ai/openai"
	"github.com/nutrilens/v1/internal/infrastructure/cache"
	"github.com/nutrilens/v1/internal/infrastructure/config"
	"github.com/nutrilens/v1/internal/infrastructure/http/handlers"
	"github.com/nutrilens/v1/internal/infrastructure/http/server"
	"github.com/nutrilens/v1/internal/infrastructure/monitoring"
	"github.com/nutrilens/v1/internal/ports/inbound"
	"github.com/nutrilens/v1/internal/ports/outbound"
	"github.com/nutrilens/v1/pkg/logger"
)

// Module provides every dependency of the API process.
var Module = fx.Options(
	ConfigModule,
	LoggerModule,
	ClockModule,
	MonitoringModule,
	CacheModule,
	ModelModule,
	ServiceModule,
	HTTPModule,
	LifecycleModule,
)

// ConfigModule provides configuration.
var ConfigModule = fx.Provide(
	func() (*config.Config, error) {
		return config.Load("")
	},
)

// LoggerModule provides logging.
var LoggerModule = fx.Provide(
	func(cfg *config.Config) (*zap.Logger, error) {
		return logger.New(logger.Config{
			Level:       cfg.App.LogLevel,
			Format:      cfg.App.LogFormat,
			Development: cfg.App.Debug,
		})
	},
)

// ClockModule provides the wall clock.
var ClockModule = fx.Provide(
	func() outbound.Clock {
		return outbound.SystemClock{}
	},
)

// MonitoringModule provides metrics and tracing.
var MonitoringModule = fx.Provide(
	monitoring.NewMetricsCollector,
	func(cfg *config.Config, log *zap.Logger) (*monitoring.TracingProvider, error) {
		return monitoring.NewTracingProvider(monitoring.TracingConfig{
			ServiceName:    cfg.App.Name,
			ServiceVersion: cfg.App.Version,
			Environment:    cfg.App.Environment,
			OTLPEndpoint:   cfg.Monitoring.OTLPEndpoint,
			SamplingRate:   cfg.Monitoring.SamplingRate,
			Enabled:        cfg.Monitoring.EnableTracing,
		}, log)
	},
)

// CacheModule provides the analysis byte cache and the price cache. Redis
// is optional: when disabled or unreachable the analysis cache is simply
// absent and every request goes to the model.
var CacheModule = fx.Provide(
	func(cfg *config.Config, log *zap.Logger) outbound.CacheRepository {
		if !cfg.Redis.Enabled {
			log.Info("redis disabled, analysis results are not cached")
			return nil
		}
		redisCache, err := cache.NewRedisCache(cfg.Redis, log)
		if err != nil {
			log.Warn("redis unavailable, analysis results are not cached", zap.Error(err))
			return nil
		}
		return redisCache
	},
	func(cfg *config.Config, clock outbound.Clock) *cache.PriceCache {
		return cache.NewPriceCache(cfg.Pricing.CacheTTL, cfg.Pricing.MaxEntries, clock)
	},
)

// ModelModule provides the external model client.
var ModelModule = fx.Provide(
	func(cfg *config.Config, log *zap.Logger) outbound.ModelClient {
		return openai.NewClient(cfg.AI, log)
	},
)

// ServiceModule provides the application services.
var ServiceModule = fx.Provide(
	analysis.NewParser,
	func(clock outbound.Clock) *analysis.Normalizer {
		return analysis.NewNormalizer(clock)
	},
	func() *analysis.Synthesizer {
		return analysis.NewSynthesizer(time.Now().UnixNano())
	},
	fx.Annotate(
		func(
			cfg *config.Config,
			model outbound.ModelClient,
			byteCache outbound.CacheRepository,
			parser *analysis.Parser,
			normalizer *analysis.Normalizer,
			synth *analysis.Synthesizer,
			metrics *monitoring.MetricsCollector,
			log *zap.Logger,
		) *analysis.Service {
			var limiter *rate.Limiter
			if cfg.AI.RequestsPerMin > 0 {
				limiter = rate.NewLimiter(rate.Limit(float64(cfg.AI.RequestsPerMin)/60.0), cfg.AI.BurstSize)
			}
			return analysis.NewService(model, byteCache, parser, normalizer, synth, limiter, metrics, log, analysis.Options{
				RequestTimeout: cfg.AI.RequestTimeout,
				MaxTokens:      cfg.AI.MaxTokens,
				Temperature:    cfg.AI.Temperature,
				CacheTTL:       cfg.Redis.CacheTTL,
			})
		},
		fx.As(new(inbound.AnalysisService)),
	),
	fx.Annotate(
		func(cfg *config.Config, model outbound.ModelClient, parser *analysis.Parser, normalizer *analysis.Normalizer, clock outbound.Clock, log *zap.Logger) *mealplan.Service {
			return mealplan.NewService(model, parser, normalizer, clock, log, mealplan.Options{
				MaxTokens:      cfg.AI.MaxTokens,
				Temperature:    cfg.AI.Temperature,
				RequestTimeout: cfg.AI.RequestTimeout,
			})
		},
		fx.As(new(inbound.MealPlanService)),
	),
	fx.Annotate(
		func(cfg *config.Config, model outbound.ModelClient, log *zap.Logger) *chat.Service {
			return chat.NewService(model, log, chat.Options{
				MaxTokens:      cfg.AI.MaxTokens,
				Temperature:    cfg.AI.Temperature,
				RequestTimeout: cfg.AI.RequestTimeout,
				DefaultLocale:  cfg.App.DefaultLocale,
			})
		},
		fx.As(new(inbound.NutritionChatService)),
	),
	fx.Annotate(
		func(cfg *config.Config, model outbound.ModelClient, priceCache *cache.PriceCache, clock outbound.Clock, log *zap.Logger) *pricing.Service {
			return pricing.NewService(model, priceCache, clock, log, pricing.Options{
				Currency:    cfg.Pricing.Currency,
				MaxTokens:   cfg.AI.MaxTokens,
				Temperature: cfg.AI.Temperature,
			})
		},
		fx.As(new(inbound.PriceService)),
	),
)

// HTTPModule provides the handlers and the server.
var HTTPModule = fx.Provide(
	handlers.NewAPIHandlers,
	server.New,
)

// LifecycleModule starts the HTTP server and flushes tracing on shutdown.
var LifecycleModule = fx.Invoke(
	func(lc fx.Lifecycle, srv *server.Server, tracing *monitoring.TracingProvider, log *zap.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					if err := srv.Start(); err != nil {
						log.Error("http server stopped", zap.Error(err))
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				if err := srv.Shutdown(ctx); err != nil {
					log.Warn("http shutdown failed", zap.Error(err))
				}
				return tracing.Shutdown(ctx)
			},
		})
	},
)
