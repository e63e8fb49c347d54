// Package backend calls the interview backend's HTTP endpoints: documents,
// summaries, question generation, model comparison, calendar and FAQ cache.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"interview-copilot/internal/observability/logging"
	"interview-copilot/internal/observability/metrics"
)

var (
	ErrUploadFailed     = errors.New("backend: upload failed")
	ErrGenerationFailed = errors.New("backend: generation failed")
	ErrRequestFailed    = errors.New("backend: request failed")
)

// Document kinds accepted by UploadDocument.
const (
	DocumentResume = "resume"
	DocumentJob    = "job"
)

// Client is an HTTP client for the backend.
type Client struct {
	baseURL string
	http    *http.Client
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// New creates a client. timeout bounds each request, including streamed ones.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("backend-client"),
	}
}

// status is the envelope every JSON endpoint answers with.
type status struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s status) ok() bool { return s.Success }

func (s status) reason() string {
	if s.Message != "" {
		return s.Message
	}
	if s.Error != "" {
		return s.Error
	}
	return "unsuccessful response"
}

type envelope interface {
	ok() bool
	reason() string
}

// DocumentResult is returned by UploadDocument and SaveJobText.
type DocumentResult struct {
	status
	Language      string `json:"language,omitempty"`
	LanguageCode  string `json:"language_code,omitempty"`
	ResumeSummary string `json:"resume_summary,omitempty"`
	JobSummary    string `json:"job_summary,omitempty"`
}

// Summaries holds the resume and job summaries with their detected languages.
type Summaries struct {
	status
	ResumeSummary      string `json:"resume_summary"`
	JobSummary         string `json:"job_summary"`
	ResumeLanguage     string `json:"resume_language,omitempty"`
	ResumeLanguageCode string `json:"resume_language_code,omitempty"`
	JobLanguage        string `json:"job_language,omitempty"`
	JobLanguageCode    string `json:"job_language_code,omitempty"`
}

// CompanyQuestions are likely interview questions, grouped by category.
type CompanyQuestions struct {
	Questions json.RawMessage `json:"questions"`
	Labels    json.RawMessage `json:"labels,omitempty"`
}

// CompareRequest asks one model to answer a question.
type CompareRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Question string `json:"question"`
}

// CalendarInterviews lists interviews found in the user's calendar.
type CalendarInterviews struct {
	status
	Interviews []map[string]any `json:"interviews"`
}

// OverlayResult is returned by LaunchOverlay.
type OverlayResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// FAQUpload is returned by UploadFAQ.
type FAQUpload struct {
	status
	FAQCount  int    `json:"faq_count"`
	OldCount  int    `json:"old_count"`
	Timestamp string `json:"timestamp"`
}

// FAQStats describes the FAQ cache.
type FAQStats struct {
	status
	CacheEmpty     bool `json:"cache_empty"`
	TotalQuestions int  `json:"total_questions"`
}

// FAQData is the cached FAQ content.
type FAQData struct {
	status
	FAQs []map[string]any `json:"faqs"`
}

// UploadDocument uploads a resume or job description file.
func (c *Client) UploadDocument(ctx context.Context, kind, filename string, content io.Reader) (*DocumentResult, error) {
	if kind != DocumentResume && kind != DocumentJob {
		return nil, fmt.Errorf("%w: unknown document type %q", ErrUploadFailed, kind)
	}
	var out DocumentResult
	err := c.upload(ctx, "/upload-document/", filename, content, map[string]string{"type": kind}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveJobText stores a pasted job description and has it analysed.
func (c *Client) SaveJobText(ctx context.Context, text string) (*DocumentResult, error) {
	var out DocumentResult
	if err := c.doJSON(ctx, http.MethodPost, "/save-job-text/", map[string]string{"job_text": text}, &out, ErrGenerationFailed); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GenerateSummaries(ctx context.Context) (*Summaries, error) {
	var out Summaries
	if err := c.doJSON(ctx, http.MethodPost, "/generate-summaries/", nil, &out, ErrGenerationFailed); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetSummaries(ctx context.Context) (*Summaries, error) {
	var out Summaries
	if err := c.doJSON(ctx, http.MethodGet, "/get-summaries/", nil, &out, ErrRequestFailed); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateCompanyQuestions has the backend predict company-specific questions.
func (c *Client) GenerateCompanyQuestions(ctx context.Context) (*CompanyQuestions, error) {
	var out CompanyQuestions
	if err := c.doJSON(ctx, http.MethodPost, "/generate-company-questions/", nil, &out, ErrGenerationFailed); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompareLLMs streams one model's answer, calling onChunk for every piece of
// text as it arrives, and returns the full answer.
func (c *Client) CompareLLMs(ctx context.Context, req CompareRequest, onChunk func(string) error) (string, error) {
	const endpoint = "/compare-llms/"
	start := time.Now()

	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		c.metrics.RecordBackendRequest(endpoint, err, time.Since(start).Seconds())
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf("%w: HTTP %d", ErrGenerationFailed, resp.StatusCode)
		c.metrics.RecordBackendRequest(endpoint, err, time.Since(start).Seconds())
		return "", err
	}

	var full strings.Builder
	var carry []byte
	buf := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			data := append(carry, buf[:n]...)
			cut := completeRunes(data)
			chunk := string(data[:cut])
			carry = append([]byte(nil), data[cut:]...)
			if chunk != "" {
				full.WriteString(chunk)
				if onChunk != nil {
					if err := onChunk(chunk); err != nil {
						c.metrics.RecordBackendRequest(endpoint, err, time.Since(start).Seconds())
						return full.String(), err
					}
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			err = fmt.Errorf("%w: %v", ErrGenerationFailed, readErr)
			c.metrics.RecordBackendRequest(endpoint, err, time.Since(start).Seconds())
			return full.String(), err
		}
	}
	if len(carry) > 0 {
		full.Write(carry)
		if onChunk != nil {
			_ = onChunk(string(carry))
		}
	}

	c.metrics.RecordBackendRequest(endpoint, nil, time.Since(start).Seconds())
	return full.String(), nil
}

// completeRunes returns the length of the longest prefix of b that does not
// end in a truncated UTF-8 sequence.
func completeRunes(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				return i
			}
			break
		}
	}
	return len(b)
}

// CalendarInterviews lists interviews in the window around today.
func (c *Client) CalendarInterviews(ctx context.Context, daysAhead, daysBack int) (*CalendarInterviews, error) {
	q := url.Values{}
	q.Set("days_ahead", fmt.Sprint(daysAhead))
	q.Set("days_back", fmt.Sprint(daysBack))
	var out CalendarInterviews
	if err := c.doJSON(ctx, http.MethodGet, "/calendar-interviews/?"+q.Encode(), nil, &out, ErrRequestFailed); err != nil {
		return nil, err
	}
	return &out, nil
}

// LaunchOverlay asks the backend host to open the overlay window.
func (c *Client) LaunchOverlay(ctx context.Context) (*OverlayResult, error) {
	var out OverlayResult
	if err := c.doJSON(ctx, http.MethodGet, "/launch-overlay/", nil, &out, ErrRequestFailed); err != nil {
		return nil, err
	}
	if out.Status != "success" {
		return &out, fmt.Errorf("%w: %s", ErrRequestFailed, out.Message)
	}
	return &out, nil
}

// UploadFAQ replaces the FAQ cache with a JSON file.
func (c *Client) UploadFAQ(ctx context.Context, filename string, content io.Reader) (*FAQUpload, error) {
	var out FAQUpload
	if err := c.upload(ctx, "/upload-faq/", filename, content, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetFAQStats(ctx context.Context) (*FAQStats, error) {
	var out FAQStats
	if err := c.doJSON(ctx, http.MethodGet, "/get-faq-stats/", nil, &out, ErrRequestFailed); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetFAQData(ctx context.Context) (*FAQData, error) {
	var out FAQData
	if err := c.doJSON(ctx, http.MethodGet, "/get-faq-data/", nil, &out, ErrRequestFailed); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ClearFAQ(ctx context.Context) error {
	var out status
	return c.doJSON(ctx, http.MethodPost, "/clear-faq/", nil, &out, ErrRequestFailed)
}

func (c *Client) upload(ctx context.Context, endpoint, filename string, content io.Reader, fields map[string]string, out any) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrUploadFailed, filename, err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req, endpoint, out, ErrUploadFailed)
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, in, out any, class error) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return err
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, endpoint, out, class)
}

// do sends req and decodes the JSON answer into out. Failures are wrapped in
// class.
func (c *Client) do(req *http.Request, endpoint string, out any, class error) (err error) {
	start := time.Now()
	name, _, _ := strings.Cut(endpoint, "?")
	defer func() {
		c.metrics.RecordBackendRequest(name, err, time.Since(start).Seconds())
		if err != nil {
			c.logger.Warn().Err(err).Str("endpoint", name).Msg("Backend request failed")
		}
	}()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", class, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", class, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var s status
		if json.Unmarshal(data, &s) == nil && (s.Message != "" || s.Error != "") {
			return fmt.Errorf("%w: HTTP %d: %s", class, resp.StatusCode, s.reason())
		}
		return fmt.Errorf("%w: HTTP %d", class, resp.StatusCode)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode: %v", class, err)
	}
	if env, ok := out.(envelope); ok && !env.ok() {
		return fmt.Errorf("%w: %s", class, env.reason())
	}
	return nil
}
