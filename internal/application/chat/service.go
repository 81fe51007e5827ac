// Package chat answers free-text nutrition questions through the external
// model, with canned localized replies when the model cannot answer.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nutrilens/v1/internal/ports/inbound"
	"github.com/nutrilens/v1/internal/ports/outbound"
	apperrors "github.com/nutrilens/v1/pkg/errors"
)

const chatSystemPrompt = `You are a friendly nutrition assistant. Give practical, evidence-based nutrition advice in 2-4 short paragraphs. Answer in the user's language. Do not give medical diagnoses; suggest consulting a professional for medical concerns.`

const maxMessageLen = 4000

// fallbackReplies are the canned answers used when the model path fails,
// keyed by locale with English as the default.
var fallbackReplies = map[string]string{
	"en": "I can't reach the nutrition assistant right now. As general guidance: build meals around vegetables, lean protein, and whole grains, keep added sugar low, and drink water with every meal. Please try again in a moment.",
	"es": "No puedo conectar con el asistente de nutrición en este momento. Como pauta general: construye tus comidas con verduras, proteína magra y cereales integrales, limita el azúcar añadido y bebe agua con cada comida. Inténtalo de nuevo en un momento.",
	"ru": "Сейчас не удаётся связаться с ассистентом по питанию. Общий совет: стройте приёмы пищи вокруг овощей, нежирного белка и цельных злаков, ограничивайте добавленный сахар и пейте воду с каждым приёмом пищи. Пожалуйста, попробуйте ещё раз чуть позже.",
}

// Options carries the model tunables.
type Options struct {
	MaxTokens      int
	Temperature    float64
	RequestTimeout time.Duration
	DefaultLocale  string
}

// Service is the conversational advice endpoint.
type Service struct {
	model  outbound.ModelClient
	logger *zap.Logger
	opts   Options
}

// NewService creates the chat service.
func NewService(model outbound.ModelClient, logger *zap.Logger, opts Options) *Service {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.DefaultLocale == "" {
		opts.DefaultLocale = "en"
	}
	return &Service{model: model, logger: logger.Named("chat"), opts: opts}
}

// Reply answers a nutrition question. External failures produce the canned
// localized reply; the error return is reserved for unusable input.
func (s *Service) Reply(ctx context.Context, req inbound.ChatRequest) (string, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return "", apperrors.NewEmptyPayloadError("chat message")
	}
	if len(message) > maxMessageLen {
		return "", apperrors.NewPayloadTooLargeError(len(message), maxMessageLen)
	}

	reply, ok := s.replyWithModel(ctx, message, req)
	if !ok {
		return s.fallbackReply(req.Locale), nil
	}
	return reply, nil
}

func (s *Service) replyWithModel(ctx context.Context, message string, req inbound.ChatRequest) (string, bool) {
	if s.model == nil || !s.model.Available() {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	reply, err := s.model.CompleteText(ctx, outbound.ModelPrompt{
		System:      chatSystemPrompt,
		User:        buildUserPrompt(message, req),
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		s.logger.Warn("chat model call failed", zap.Error(err))
		return "", false
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", false
	}
	return reply, true
}

// buildUserPrompt folds the personalization context into the message so the
// model can tailor portion and goal advice.
func buildUserPrompt(message string, req inbound.ChatRequest) string {
	var b strings.Builder
	cctx := req.Context
	if cctx.Name != "" {
		fmt.Fprintf(&b, "User name: %s. ", cctx.Name)
	}
	if cctx.Goal != "" {
		fmt.Fprintf(&b, "Goal: %s. ", cctx.Goal)
	}
	if cctx.DailyCalorieTarget > 0 {
		fmt.Fprintf(&b, "Daily calorie target: %.0f kcal. ", cctx.DailyCalorieTarget)
	}
	if len(cctx.Restrictions) > 0 {
		fmt.Fprintf(&b, "Dietary restrictions: %s. ", strings.Join(cctx.Restrictions, ", "))
	}
	if len(cctx.RecentMeals) > 0 {
		fmt.Fprintf(&b, "Recent meals: %s. ", strings.Join(cctx.RecentMeals, "; "))
	}
	if req.Locale != "" {
		fmt.Fprintf(&b, "Answer in locale %q. ", req.Locale)
	}
	b.WriteString("Question: ")
	b.WriteString(message)
	return b.String()
}

func (s *Service) fallbackReply(locale string) string {
	if reply, ok := fallbackReplies[normalizeLocale(locale)]; ok {
		return reply
	}
	if reply, ok := fallbackReplies[s.opts.DefaultLocale]; ok {
		return reply
	}
	return fallbackReplies["en"]
}

// normalizeLocale reduces a BCP 47 tag to its primary language subtag.
func normalizeLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if idx := strings.IndexAny(locale, "-_"); idx > 0 {
		locale = locale[:idx]
	}
	return locale
}
