package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nutrilens/v1/internal/ports/inbound"
	"github.com/nutrilens/v1/internal/ports/outbound"
)

type stubModel struct {
	available  bool
	response   string
	err        error
	lastPrompt outbound.ModelPrompt
}

func (m *stubModel) CompleteText(ctx context.Context, prompt outbound.ModelPrompt) (string, error) {
	m.lastPrompt = prompt
	return m.response, m.err
}

func (m *stubModel) CompleteVision(ctx context.Context, prompt outbound.ModelPrompt, imageBase64 string) (string, error) {
	return "", outbound.ErrModelUnavailable
}

func (m *stubModel) Available() bool { return m.available }

func newTestService(model outbound.ModelClient) *Service {
	return NewService(model, zap.NewNop(), Options{MaxTokens: 600})
}

func TestReply_ModelAnswer(t *testing.T) {
	model := &stubModel{available: true, response: "Aim for around 30g of protein per meal."}
	svc := newTestService(model)

	reply, err := svc.Reply(context.Background(), inbound.ChatRequest{Message: "How much protein do I need?"})

	require.NoError(t, err)
	assert.Equal(t, "Aim for around 30g of protein per meal.", reply)
}

func TestReply_ContextFoldedIntoPrompt(t *testing.T) {
	model := &stubModel{available: true, response: "ok"}
	svc := newTestService(model)

	_, err := svc.Reply(context.Background(), inbound.ChatRequest{
		Message: "What should I eat for dinner?",
		Locale:  "es",
		Context: inbound.ChatContext{
			Goal:               "weight loss",
			DailyCalorieTarget: 1800,
			Restrictions:       []string{"vegetarian"},
		},
	})

	require.NoError(t, err)
	assert.Contains(t, model.lastPrompt.User, "weight loss")
	assert.Contains(t, model.lastPrompt.User, "1800 kcal")
	assert.Contains(t, model.lastPrompt.User, "vegetarian")
	assert.Contains(t, model.lastPrompt.User, `"es"`)
}

func TestReply_ModelFailureYieldsCannedReply(t *testing.T) {
	model := &stubModel{available: true, err: context.DeadlineExceeded}
	svc := newTestService(model)

	reply, err := svc.Reply(context.Background(), inbound.ChatRequest{Message: "Is keto healthy?"})

	require.NoError(t, err, "external failures never surface to the caller")
	assert.Equal(t, fallbackReplies["en"], reply)
}

func TestReply_FallbackIsLocalized(t *testing.T) {
	svc := newTestService(&stubModel{available: false})

	cases := map[string]string{
		"es":    fallbackReplies["es"],
		"es-MX": fallbackReplies["es"],
		"ru":    fallbackReplies["ru"],
		"fr":    fallbackReplies["en"],
		"":      fallbackReplies["en"],
	}
	for locale, want := range cases {
		reply, err := svc.Reply(context.Background(), inbound.ChatRequest{Message: "hola", Locale: locale})
		require.NoError(t, err)
		assert.Equal(t, want, reply, "locale %q", locale)
	}
}

func TestReply_EmptyMessageRejected(t *testing.T) {
	svc := newTestService(&stubModel{available: true})

	_, err := svc.Reply(context.Background(), inbound.ChatRequest{Message: "   "})
	require.Error(t, err)
}

func TestReply_OversizedMessageRejected(t *testing.T) {
	svc := newTestService(&stubModel{available: true})

	_, err := svc.Reply(context.Background(), inbound.ChatRequest{Message: strings.Repeat("a", maxMessageLen+1)})
	require.Error(t, err)
}

func TestReply_BlankModelOutputYieldsCannedReply(t *testing.T) {
	model := &stubModel{available: true, response: "   \n"}
	svc := newTestService(model)

	reply, err := svc.Reply(context.Background(), inbound.ChatRequest{Message: "help"})

	require.NoError(t, err)
	assert.Equal(t, fallbackReplies["en"], reply)
}
