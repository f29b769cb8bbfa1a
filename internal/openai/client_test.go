package openai

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/cloo-solutions/sheetrag/internal/retry"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOpenAIAPI is a mock for the OpenAI API
type MockOpenAIAPI struct {
	mock.Mock
}

func (m *MockOpenAIAPI) CreateEmbeddings(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockOpenAIAPI) CreateCompletion(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

func newMockClient(api *MockOpenAIAPI, dims int) *Client {
	return &Client{api: api, chat: api, dimensions: dims, embeddingModel: "test-embed", chatModel: "test-chat"}
}

func TestClient_GenerateEmbedding_Success(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newMockClient(mockAPI, 8)

	ctx := context.Background()
	text := "Sheet: Sales | Row 2 | Region: North | Revenue: 1000"
	expectedEmbedding := make([]float32, 8)
	for i := range expectedEmbedding {
		expectedEmbedding[i] = float32(i) * 0.001
	}

	mockAPI.On("CreateEmbeddings", ctx, text).Return(expectedEmbedding, nil)

	embedding, err := client.GenerateEmbedding(ctx, text)

	assert.NoError(t, err)
	assert.Equal(t, expectedEmbedding, embedding)
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_EmptyText(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newMockClient(mockAPI, 8)

	ctx := context.Background()
	embedding, err := client.GenerateEmbedding(ctx, "")

	assert.Nil(t, embedding)
	assert.ErrorIs(t, err, ErrEmptyText)
	mockAPI.AssertNotCalled(t, "CreateEmbeddings", mock.Anything, mock.Anything)
}

func TestClient_GenerateEmbedding_APIError(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newMockClient(mockAPI, 8)

	ctx := context.Background()
	text := "Test text"
	apiErr := errors.New("API rate limit exceeded")

	mockAPI.On("CreateEmbeddings", ctx, text).Return(nil, apiErr)

	embedding, err := client.GenerateEmbedding(ctx, text)

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.Contains(t, err.Error(), "failed to create embedding")
	assert.ErrorIs(t, err, apiErr)
	mockAPI.AssertExpectations(t)
}

func TestClient_GenerateEmbedding_WrongDimensions(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newMockClient(mockAPI, 8)

	ctx := context.Background()
	text := "Test text"
	// Return embedding with wrong dimensions
	wrongEmbedding := make([]float32, 4)

	mockAPI.On("CreateEmbeddings", ctx, text).Return(wrongEmbedding, nil)

	embedding, err := client.GenerateEmbedding(ctx, text)

	assert.Error(t, err)
	assert.Nil(t, embedding)
	assert.ErrorIs(t, err, ErrWrongDimensions)
	assert.Contains(t, err.Error(), "got 4, expected 8")
	mockAPI.AssertExpectations(t)
}

func TestClient_Generate(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newMockClient(mockAPI, 8)
	ctx := context.Background()

	mockAPI.On("CreateCompletion", ctx, "question").Return("  North had 1000 revenue.\n", nil)

	out, err := client.Generate(ctx, "question")

	assert.NoError(t, err)
	assert.Equal(t, "North had 1000 revenue.", out)
	mockAPI.AssertExpectations(t)
}

func TestClient_Generate_Errors(t *testing.T) {
	mockAPI := new(MockOpenAIAPI)
	client := newMockClient(mockAPI, 8)
	ctx := context.Background()

	_, err := client.Generate(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyText)

	apiErr := errors.New("model overloaded")
	mockAPI.On("CreateCompletion", ctx, "question").Return("", apiErr)

	_, err = client.Generate(ctx, "question")
	assert.ErrorIs(t, err, apiErr)
	assert.Contains(t, err.Error(), "failed to create completion")
}

func TestNewClientWithConfig_Defaults(t *testing.T) {
	client := NewClientWithConfig(Config{APIKey: "test-api-key", Temperature: -1})

	assert.NotNil(t, client.api)
	assert.NotNil(t, client.chat)
	assert.Equal(t, string(DefaultEmbeddingModel), client.Model())
	assert.Equal(t, DefaultChatModel, client.ChatModel())
	assert.Equal(t, DefaultEmbeddingDimensions, client.Dimensions())

	adapter, ok := client.chat.(*OpenAIAdapter)
	require.True(t, ok)
	assert.Equal(t, DefaultTemperature, adapter.temperature)
}

func TestNewClientWithConfig(t *testing.T) {
	client := NewClientWithConfig(Config{
		APIKey:              "key",
		BaseURL:             "http://localhost:11434/v1/",
		EmbeddingModel:      "nomic-embed-text",
		EmbeddingDimensions: 768,
		ChatModel:           "llama3",
	})

	assert.Equal(t, "nomic-embed-text", client.Model())
	assert.Equal(t, "llama3", client.ChatModel())
	assert.Equal(t, 768, client.Dimensions())

	adapter, ok := client.api.(*OpenAIAdapter)
	assert.True(t, ok)
	assert.Equal(t, 768, adapter.dimensions)
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func TestClient_PermanentErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *MockOpenAIAPI)
		call  func(c *Client) error
		want  error
	}{
		{
			name:  "empty text",
			setup: func(m *MockOpenAIAPI) {},
			call: func(c *Client) error {
				_, err := c.GenerateEmbedding(context.Background(), "")
				return err
			},
			want: ErrEmptyText,
		},
		{
			name: "wrong dimensions",
			setup: func(m *MockOpenAIAPI) {
				m.On("CreateEmbeddings", mock.Anything, "row").Return(make([]float32, 4), nil)
			},
			call: func(c *Client) error {
				_, err := c.GenerateEmbedding(context.Background(), "row")
				return err
			},
			want: ErrWrongDimensions,
		},
		{
			name: "embedding rejected",
			setup: func(m *MockOpenAIAPI) {
				m.On("CreateEmbeddings", mock.Anything, "row").
					Return(nil, &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "input too long"})
			},
			call: func(c *Client) error {
				_, err := c.GenerateEmbedding(context.Background(), "row")
				return err
			},
		},
		{
			name: "completion unauthorized",
			setup: func(m *MockOpenAIAPI) {
				m.On("CreateCompletion", mock.Anything, "question").
					Return("", &openai.RequestError{HTTPStatusCode: http.StatusUnauthorized, Err: errors.New("bad key")})
			},
			call: func(c *Client) error {
				_, err := c.Generate(context.Background(), "question")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAPI := new(MockOpenAIAPI)
			tt.setup(mockAPI)
			client := newMockClient(mockAPI, 8)

			attempts := 0
			err := retry.Do(context.Background(), fastPolicy(), tt.name, func(context.Context) error {
				attempts++
				return tt.call(client)
			})

			require.Error(t, err)
			assert.Equal(t, 1, attempts)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestClient_TransientErrorsAreRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}},
		{"server error", &openai.APIError{HTTPStatusCode: http.StatusBadGateway, Message: "upstream"}},
		{"request timeout", &openai.RequestError{HTTPStatusCode: http.StatusRequestTimeout, Err: errors.New("timeout")}},
		{"network", errors.New("connection reset by peer")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockAPI := new(MockOpenAIAPI)
			mockAPI.On("CreateEmbeddings", mock.Anything, "row").Return(nil, tt.err).Once()
			mockAPI.On("CreateEmbeddings", mock.Anything, "row").Return(make([]float32, 8), nil).Once()
			client := newMockClient(mockAPI, 8)

			var vec []float32
			err := retry.Do(context.Background(), fastPolicy(), tt.name, func(ctx context.Context) error {
				v, err := client.GenerateEmbedding(ctx, "row")
				vec = v
				return err
			})

			require.NoError(t, err)
			assert.Len(t, vec, 8)
			mockAPI.AssertNumberOfCalls(t, "CreateEmbeddings", 2)
		})
	}
}
