package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nutrilens/v1/internal/domain/nutrition"
	"github.com/nutrilens/v1/internal/ports/inbound"
	"github.com/nutrilens/v1/internal/ports/outbound"
	apperrors "github.com/nutrilens/v1/pkg/errors"
)

// Image payload bounds. Anything outside is rejected before any model work.
const (
	minImageBytes = 1 << 10  // 1 KB
	maxImageBytes = 10 << 20 // 10 MB
)

const analysisSystemPrompt = `You are a nutrition analysis service. Analyze the meal and respond with ONLY a single JSON object, no prose, using these keys: meal_name, calories, protein_g, carbs_g, fats_g, fiber_g, sugar_g, sodium_mg, cholesterol_mg, glycemic_index, insulin_index, confidence (0-100), cooking_method, food_category, health_notes (array), vitamins (object), minerals (object), allergens (array), ingredients (array of objects with name, calories, protein_g, carbs_g, fats_g, weight_g).`

// Metrics receives pipeline observations. Implementations must be
// safe for concurrent use. A non-positive ObserveModelCall duration records
// only the error class, not a latency sample.
type Metrics interface {
	ObserveAnalysis(source inbound.ResultSource, degraded bool)
	ObserveModelCall(operation string, duration time.Duration, errClass outbound.ModelErrorClass)
	ObserveCacheLookup(hit bool)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) ObserveAnalysis(inbound.ResultSource, bool)                       {}
func (NopMetrics) ObserveModelCall(string, time.Duration, outbound.ModelErrorClass) {}
func (NopMetrics) ObserveCacheLookup(bool)                                          {}

// tracer resolves the current global tracer provider on every call, so
// spans land on the provider the runtime registers.
func tracer() trace.Tracer {
	return otel.Tracer("nutrilens/analysis")
}

// Options carries the tunables the service reads from configuration.
type Options struct {
	RequestTimeout time.Duration
	MaxTokens      int
	Temperature    float64
	CacheTTL       time.Duration
}

// Service is the fallback-ladder analysis pipeline. Analyze operations are
// total: once the input passes validation a record is always produced, in
// the worst case a synthesized one.
type Service struct {
	model      outbound.ModelClient
	cache      outbound.CacheRepository // nil disables response caching
	parser     *Parser
	normalizer *Normalizer
	synth      *Synthesizer
	limiter    *rate.Limiter
	metrics    Metrics
	logger     *zap.Logger
	opts       Options
}

// NewService assembles the pipeline. cache may be nil; limiter may be nil
// to disable model-call rate limiting.
func NewService(
	model outbound.ModelClient,
	cache outbound.CacheRepository,
	parser *Parser,
	normalizer *Normalizer,
	synth *Synthesizer,
	limiter *rate.Limiter,
	metrics Metrics,
	logger *zap.Logger,
	opts Options,
) *Service {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Service{
		model:      model,
		cache:      cache,
		parser:     parser,
		normalizer: normalizer,
		synth:      synth,
		limiter:    limiter,
		metrics:    metrics,
		logger:     logger.Named("analysis"),
		opts:       opts,
	}
}

// AnalyzeImage analyzes a photographed meal. The only errors it returns are
// for caller-input mistakes: empty, undecodable, or out-of-bounds payloads.
func (s *Service) AnalyzeImage(ctx context.Context, req inbound.AnalysisRequest) (*inbound.AnalysisResult, error) {
	if strings.TrimSpace(req.ImageBase64) == "" {
		return nil, apperrors.NewEmptyPayloadError("image").WithCause(nutrition.ErrEmptyImage)
	}
	decoded, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		return nil, apperrors.NewPayloadInvalidError(fmt.Errorf("%w: %v", nutrition.ErrImageNotDecodable, err))
	}
	if len(decoded) < minImageBytes {
		return nil, apperrors.NewPayloadTooSmallError(len(decoded), minImageBytes).WithCause(nutrition.ErrImageTooSmall)
	}
	if len(decoded) > maxImageBytes {
		return nil, apperrors.NewPayloadTooLargeError(len(decoded), maxImageBytes).WithCause(nutrition.ErrImageTooLarge)
	}

	return s.run(ctx, req, "vision", func(ctx context.Context) (string, error) {
		return s.model.CompleteVision(ctx, s.prompt(s.visionUserPrompt(req)), req.ImageBase64)
	}), nil
}

// AnalyzeDescription analyzes a free-text meal description.
func (s *Service) AnalyzeDescription(ctx context.Context, req inbound.AnalysisRequest) (*inbound.AnalysisResult, error) {
	if strings.TrimSpace(req.Note) == "" {
		return nil, apperrors.NewEmptyPayloadError("description").WithCause(nutrition.ErrEmptyDescription)
	}

	return s.run(ctx, req, "text", func(ctx context.Context) (string, error) {
		return s.model.CompleteText(ctx, s.prompt(s.textUserPrompt(req)))
	}), nil
}

// run climbs the ladder: cache, model call, parse, normalize, and finally
// synthesis. It cannot fail.
func (s *Service) run(ctx context.Context, req inbound.AnalysisRequest, operation string, call func(context.Context) (string, error)) *inbound.AnalysisResult {
	ctx, span := tracer().Start(ctx, "analysis.analyze",
		trace.WithAttributes(attribute.String("operation", operation)))
	defer span.End()

	key := s.cacheKey(operation, req)
	if cached := s.cacheLookup(ctx, key); cached != nil {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return cached
	}

	result := s.analyzeOnce(ctx, req, operation, call)
	span.SetAttributes(
		attribute.String("source", string(result.Source)),
		attribute.Bool("degraded", result.Degraded),
	)
	s.metrics.ObserveAnalysis(result.Source, result.Degraded)
	s.cacheStore(ctx, key, result)
	return result
}

func (s *Service) analyzeOnce(ctx context.Context, req inbound.AnalysisRequest, operation string, call func(context.Context) (string, error)) *inbound.AnalysisResult {
	raw, err := s.callModel(ctx, operation, call)
	if err != nil {
		s.logger.Warn("model call failed, synthesizing",
			zap.String("operation", operation),
			zap.String("error_class", string(classifyModelError(err))),
			zap.Error(err))
		return s.synthesize(ctx, req, "model call failed")
	}
	if strings.TrimSpace(raw) == "" {
		s.logger.Warn("model returned empty content, synthesizing",
			zap.String("operation", operation))
		return s.synthesize(ctx, req, "empty model response")
	}

	result, err := s.parseAndNormalize(ctx, raw, req.EditedIngredients)
	if err != nil {
		if errClass := classifyModelError(err); errClass == outbound.ModelErrorRefusal {
			s.metrics.ObserveModelCall(operation, 0, errClass)
		}
		s.logger.Warn("model output unrecoverable, synthesizing",
			zap.String("operation", operation),
			zap.String("error_class", string(classifyModelError(err))),
			zap.Int("raw_len", len(raw)),
			zap.Error(err))
		return s.synthesize(ctx, req, "model output unrecoverable")
	}
	return result
}

// callModel applies the timeout and optional rate limit to a single model
// invocation. No retries: the fallback ladder is the retry strategy.
func (s *Service) callModel(ctx context.Context, operation string, call func(context.Context) (string, error)) (string, error) {
	if s.model == nil || !s.model.Available() {
		return "", outbound.ErrModelUnavailable
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	ctx, span := tracer().Start(ctx, "analysis.model_call",
		trace.WithAttributes(attribute.String("operation", operation)))
	defer span.End()

	start := time.Now()
	raw, err := call(ctx)
	errClass := classifyModelError(err)
	if err != nil {
		span.SetAttributes(attribute.String("error_class", string(errClass)))
	}
	s.metrics.ObserveModelCall(operation, time.Since(start), errClass)
	return raw, err
}

// parseAndNormalize runs the recovery parser and normalizer with a panic
// guard: a bug anywhere in the recovery path degrades to synthesis instead
// of taking down the request.
func (s *Service) parseAndNormalize(ctx context.Context, raw string, edited []nutrition.IngredientRecord) (result *inbound.AnalysisResult, err error) {
	_, span := tracer().Start(ctx, "analysis.parse_normalize",
		trace.WithAttributes(attribute.Int("raw_len", len(raw))))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic during recovery parse", zap.Any("panic", r))
			result = nil
			err = fmt.Errorf("recovery panic: %v", r)
		}
	}()

	parsed, perr := s.parser.Parse(raw)
	if perr != nil {
		return nil, perr
	}

	rec := s.normalizer.Normalize(parsed, edited)
	res := &inbound.AnalysisResult{
		Record: rec,
		Source: parsed.Source,
	}
	if parsed.Source != inbound.SourceModel {
		res.Degraded = true
		res.DegradedReason = degradedReason(parsed.Source)
	}
	span.SetAttributes(attribute.String("source", string(parsed.Source)))
	return res, nil
}

func (s *Service) synthesize(ctx context.Context, req inbound.AnalysisRequest, reason string) *inbound.AnalysisResult {
	_, span := tracer().Start(ctx, "analysis.synthesize")
	defer span.End()

	parsed := s.synth.Synthesize(req.Note)
	rec := s.normalizer.Normalize(parsed, req.EditedIngredients)
	return &inbound.AnalysisResult{
		Record:         rec,
		Source:         inbound.SourceSynthetic,
		Degraded:       true,
		DegradedReason: reason,
	}
}

func degradedReason(source inbound.ResultSource) string {
	switch source {
	case inbound.SourceRepaired:
		return "model output required structural repair"
	case inbound.SourceMined:
		return "model output mined field by field"
	default:
		return "synthesized estimate"
	}
}

func (s *Service) prompt(user string) outbound.ModelPrompt {
	return outbound.ModelPrompt{
		System:      analysisSystemPrompt,
		User:        user,
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	}
}

func (s *Service) visionUserPrompt(req inbound.AnalysisRequest) string {
	var b strings.Builder
	b.WriteString("Analyze the nutrition content of the meal in this photo.")
	if note := strings.TrimSpace(req.Note); note != "" {
		b.WriteString(" User note: ")
		b.WriteString(note)
	}
	writeLocaleHint(&b, req.Locale)
	return b.String()
}

func (s *Service) textUserPrompt(req inbound.AnalysisRequest) string {
	var b strings.Builder
	b.WriteString("Analyze the nutrition content of this meal: ")
	b.WriteString(strings.TrimSpace(req.Note))
	writeLocaleHint(&b, req.Locale)
	return b.String()
}

func writeLocaleHint(b *strings.Builder, locale string) {
	if locale != "" && locale != "en" {
		fmt.Fprintf(b, " Write meal_name, health_notes, and ingredient names in locale %q; keep all JSON keys in English.", locale)
	}
}

// cacheKey hashes everything that affects the result so distinct requests
// never collide.
func (s *Service) cacheKey(operation string, req inbound.AnalysisRequest) string {
	h := sha256.New()
	h.Write([]byte(operation))
	h.Write([]byte{0})
	h.Write([]byte(req.ImageBase64))
	h.Write([]byte{0})
	h.Write([]byte(req.Note))
	h.Write([]byte{0})
	h.Write([]byte(req.Locale))
	if len(req.EditedIngredients) > 0 {
		if enc, err := json.Marshal(req.EditedIngredients); err == nil {
			h.Write([]byte{0})
			h.Write(enc)
		}
	}
	return "analysis:" + hex.EncodeToString(h.Sum(nil))
}

func (s *Service) cacheLookup(ctx context.Context, key string) *inbound.AnalysisResult {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil || data == nil {
		s.metrics.ObserveCacheLookup(false)
		return nil
	}
	var result inbound.AnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		s.metrics.ObserveCacheLookup(false)
		return nil
	}
	s.metrics.ObserveCacheLookup(true)
	return &result
}

func (s *Service) cacheStore(ctx context.Context, key string, result *inbound.AnalysisResult) {
	if s.cache == nil || result.Source == inbound.SourceSynthetic {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.opts.CacheTTL); err != nil {
		s.logger.Debug("analysis cache store failed", zap.Error(err))
	}
}

// classifyModelError buckets a failure for logging and metrics. The bucket
// never changes the outcome.
func classifyModelError(err error) outbound.ModelErrorClass {
	if err == nil {
		return ""
	}
	var netErr net.Error
	switch {
	case errors.Is(err, ErrModelRefusal):
		return outbound.ModelErrorRefusal
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled), errors.As(err, &netErr):
		return outbound.ModelErrorNetwork
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"), strings.Contains(msg, "rate limit"), strings.Contains(msg, "429"):
		return outbound.ModelErrorQuota
	case strings.Contains(msg, "connection"), strings.Contains(msg, "timeout"), strings.Contains(msg, "dial"):
		return outbound.ModelErrorNetwork
	default:
		return outbound.ModelErrorUnknown
	}
}
