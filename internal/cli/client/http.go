package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type APIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewAPIClientWithCmd creates an APIClient from the --api-key and --api-url
// flags, falling back to env, then global config, then the default URL.
func NewAPIClientWithCmd(cmd *cobra.Command) (*APIClient, error) {
	_ = godotenv.Load()

	var flagKey, flagURL string
	if cmd != nil {
		flagKey, _ = cmd.Flags().GetString("api-key")
		flagURL, _ = cmd.Flags().GetString("api-url")
	}

	conn, err := ResolveConnection(flagKey, flagURL)
	if err != nil {
		return nil, err
	}
	return NewAPIClientWithConfig(conn), nil
}

func NewAPIClientWithConfig(conn Connection) *APIClient {
	return &APIClient{
		baseURL: conn.APIURL,
		apiKey:  conn.APIKey,
		// Answers wait on the model provider, which can be slow.
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// APIResponse is the {"data": ...} envelope of management endpoints.
type APIResponse struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

// APIError represents an error from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (c *APIClient) Get(path string) (*APIResponse, error) {
	return c.do(http.MethodGet, path, nil)
}

func (c *APIClient) Post(path string, body any) (*APIResponse, error) {
	return c.do(http.MethodPost, path, body)
}

func (c *APIClient) Delete(path string) (*APIResponse, error) {
	return c.do(http.MethodDelete, path, nil)
}

func (c *APIClient) do(method, path string, body any) (*APIResponse, error) {
	status, respBody, err := c.send(method, path, body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if status >= 400 {
			return nil, &APIError{StatusCode: status, Message: string(respBody)}
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if status >= 400 {
		return nil, &APIError{StatusCode: status, Code: apiResp.Code, Message: apiResp.Error}
	}
	return &apiResp, nil
}

// PostRaw posts body and decodes an unenveloped response into out. Status
// codes listed in accept are decoded like successes.
func (c *APIClient) PostRaw(path string, body, out any, accept ...int) (int, error) {
	status, respBody, err := c.send(http.MethodPost, path, body)
	if err != nil {
		return 0, err
	}

	ok := status < 400
	for _, code := range accept {
		if status == code {
			ok = true
		}
	}
	if !ok {
		var apiResp APIResponse
		if json.Unmarshal(respBody, &apiResp) == nil && apiResp.Error != "" {
			return status, &APIError{StatusCode: status, Code: apiResp.Code, Message: apiResp.Error}
		}
		return status, &APIError{StatusCode: status, Message: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return status, fmt.Errorf("failed to parse response: %w", err)
	}
	return status, nil
}

func (c *APIClient) send(method, path string, body any) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.roundTrip(req)
}

func (c *APIClient) roundTrip(req *http.Request) (int, []byte, error) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// UploadWorkbook streams filePath to POST /workbook as multipart form data.
func (c *APIClient) UploadWorkbook(filePath string, rebuild bool, onProgress ProgressFunc) (*APIResponse, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("file", filepath.Base(filePath))
		if err == nil {
			_, err = io.Copy(part, &progressReader{reader: file, total: stat.Size(), onProgress: onProgress})
		}
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	path := "/workbook?rebuild=" + strconv.FormatBool(rebuild)
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, pr)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	status, respBody, err := c.roundTrip(req)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &APIError{StatusCode: status, Message: string(respBody)}
	}
	if status >= 400 {
		return nil, &APIError{StatusCode: status, Code: apiResp.Code, Message: apiResp.Error}
	}
	return &apiResp, nil
}

// ProgressFunc is a callback for reporting upload/download progress.
type ProgressFunc func(current, total int64)

type progressReader struct {
	reader     io.Reader
	total      int64
	current    int64
	onProgress ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.current += int64(n)
	if pr.onProgress != nil {
		pr.onProgress(pr.current, pr.total)
	}
	return n, err
}

// DownloadFileWithProgress saves url to outputPath. The URL is presigned,
// so no API key is sent.
func (c *APIClient) DownloadFileWithProgress(url, outputPath string, onProgress ProgressFunc) error {
	resp, err := c.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	var reader io.Reader = resp.Body
	if onProgress != nil {
		reader = &progressReader{reader: resp.Body, total: resp.ContentLength, onProgress: onProgress}
	}
	if _, err := io.Copy(out, reader); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
