package chatfilter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/cloo-solutions/sheetrag/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAnswerer is a mock implementation of Answerer
type MockAnswerer struct {
	mock.Mock
}

func (m *MockAnswerer) Answer(ctx context.Context, question string) (*domain.Answer, error) {
	args := m.Called(ctx, question)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Answer), args.Error(1)
}

func parseBody(t *testing.T, raw string) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &body))
	return body
}

func northAnswer() *domain.Answer {
	return &domain.Answer{
		Status: domain.AnswerStatusOK,
		Answer: "North had revenue of 1000.",
		Sources: []domain.Source{
			{
				ChunkID:  "c1",
				Content:  "Sheet: Sales | Row 2 | Region: North | Revenue: 1000",
				Metadata: domain.ChunkMetadata{Sheet: "Sales", RowStart: 2, RowEnd: 2},
				Score:    0.91,
			},
			{
				ChunkID:  "c2",
				Content:  "Sheet: Sales\n| Region |\n| --- |\n| North |",
				Metadata: domain.ChunkMetadata{Sheet: "Sales", RowStart: 0, RowEnd: 4},
				Score:    0.5,
			},
		},
		IndexID: "idx-1",
	}
}

func TestFilter_Inlet_InsertsSystemMessage(t *testing.T) {
	answerer := new(MockAnswerer)
	answerer.On("Answer", mock.Anything, "What is the revenue for North?").Return(northAnswer(), nil)

	body := parseBody(t, `{
		"model": "llama3",
		"stream": true,
		"messages": [
			{"role": "system", "content": "You are helpful."},
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": "hello"},
			{"role": "user", "content": "  What is the revenue for North?  "}
		]
	}`)

	out, injected := New(answerer, 0).Inlet(context.Background(), body)
	require.True(t, injected)

	assert.Equal(t, "llama3", out["model"])
	assert.Equal(t, true, out["stream"])

	messages := out["messages"].([]any)
	require.Len(t, messages, 5)

	system := messages[3].(map[string]any)
	assert.Equal(t, "system", system["role"])
	content := system["content"].(string)
	assert.Contains(t, content, "Answer: North had revenue of 1000.")
	assert.Contains(t, content, "- Sheet 'Sales', row 2: Sheet: Sales | Row 2 | Region: North | Revenue: 1000")
	assert.Contains(t, content, "- Sheet 'Sales': Sheet: Sales | Region | | --- | | North |")

	last := messages[4].(map[string]any)
	assert.Equal(t, "user", last["role"])

	// the input body is not modified
	assert.Len(t, body["messages"].([]any), 4)
	answerer.AssertExpectations(t)
}

func TestFilter_Inlet_MultipartContent(t *testing.T) {
	answerer := new(MockAnswerer)
	answerer.On("Answer", mock.Anything, "revenue\nby region").Return(northAnswer(), nil)

	body := parseBody(t, `{"messages": [
		{"role": "user", "content": [
			{"type": "text", "text": "revenue"},
			{"type": "image_url", "image_url": {"url": "data:"}},
			{"type": "text", "text": "by region"}
		]}
	]}`)

	out, injected := New(answerer, 1).Inlet(context.Background(), body)
	require.True(t, injected)

	messages := out["messages"].([]any)
	require.Len(t, messages, 2)
	content := messages[0].(map[string]any)["content"].(string)
	assert.Equal(t, 1, strings.Count(content, "\n- "))
}

func TestFilter_Inlet_PassThrough(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		answer *domain.Answer
		err    error
	}{
		{"no messages", `{"model": "x"}`, nil, nil},
		{"no user message", `{"messages": [{"role": "system", "content": "s"}]}`, nil, nil},
		{"empty user message", `{"messages": [{"role": "user", "content": "   "}]}`, nil, nil},
		{"not ready", `{"messages": [{"role": "user", "content": "q"}]}`, domain.NotReadyAnswer(), nil},
		{"answer fails", `{"messages": [{"role": "user", "content": "q"}]}`, nil, errors.New("provider down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			answerer := new(MockAnswerer)
			answerer.On("Answer", mock.Anything, mock.Anything).Return(tt.answer, tt.err).Maybe()

			body := parseBody(t, tt.body)
			out, injected := New(answerer, 0).Inlet(context.Background(), body)

			assert.False(t, injected)
			assert.Equal(t, body, out)
		})
	}
}
