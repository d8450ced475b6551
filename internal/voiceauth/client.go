// Package voiceauth submits encoded voice samples to the authentication
// service for registration and login.
package voiceauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petems/voicegate/internal/metrics"
	"github.com/petems/voicegate/internal/wav"
)

// Endpoint names, also used as metric labels.
const (
	EndpointRegister = "register"
	EndpointLogin    = "login"
)

// Identity is the profile a voice sample is registered under.
type Identity struct {
	FullName string
	Email    string
	Username string
	DOB      string // YYYY-MM-DD
}

// Response is the service's reply to a register or login request.
type Response struct {
	Success    bool    `json:"success"`
	Message    string  `json:"message"`
	Passphrase string  `json:"passphrase,omitempty"`
	Match      float64 `json:"match_percentage,omitempty"`
}

// FieldError reports a required form field that was empty.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// TransportError is a network failure or a non-2xx reply. StatusCode is zero
// when no reply was received.
type TransportError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("request failed: %s", e.Message)
	}
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}

func (e *TransportError) Unwrap() error { return e.Err }

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client     // Optional
	Metrics    *metrics.Metrics // Optional
	Logger     zerolog.Logger
}

type Client struct {
	base    string
	http    *http.Client
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
	}
}

// Register enrolls id with the voice sample in container.
func (c *Client) Register(ctx context.Context, container []byte, id Identity) (*Response, error) {
	return c.submit(ctx, EndpointRegister, container, id.registerFields())
}

// Login authenticates username with the voice sample in container.
func (c *Client) Login(ctx context.Context, container []byte, username string) (*Response, error) {
	return c.submit(ctx, EndpointLogin, container, loginFields(username))
}

// CheckRegister returns the FieldError Register would fail with, if any.
func (id Identity) CheckRegister() error {
	return checkFields(id.registerFields())
}

// CheckLogin returns the FieldError Login would fail with, if any.
func CheckLogin(username string) error {
	return checkFields(loginFields(username))
}

type field struct {
	name, value string
}

func (id Identity) registerFields() []field {
	return []field{
		{"fullname", id.FullName},
		{"email", id.Email},
		{"username", id.Username},
		{"dob", id.DOB},
	}
}

func loginFields(username string) []field {
	return []field{{"username", username}}
}

// checkFields rejects the first blank field. Whitespace counts as blank.
func checkFields(fields []field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &FieldError{Field: f.name}
		}
	}
	return nil
}

func (c *Client) submit(ctx context.Context, endpoint string, container []byte, fields []field) (*Response, error) {
	if err := checkFields(fields); err != nil {
		return nil, err
	}
	if err := wav.Validate(container); err != nil {
		return nil, err
	}

	body, contentType, err := multipartBody(container, fields)
	if err != nil {
		return nil, fmt.Errorf("build request body: %w", err)
	}

	url := c.base + "/api/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	log := c.log.With().Str("endpoint", endpoint).Str("request_id", requestID).Logger()
	log.Info().Int("bytes", len(container)).Msg("Submitting voice sample")

	start := time.Now()
	resp, err := c.do(req)
	c.observe(endpoint, start, err)
	if err != nil {
		log.Error().Err(err).Msg("Request failed")
		return nil, err
	}
	log.Info().Bool("success", resp.Success).Float64("match", resp.Match).Msg("Response received")
	return resp, nil
}

func (c *Client) do(req *http.Request) (*Response, error) {
	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Message: err.Error(), Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, &TransportError{StatusCode: httpResp.StatusCode, Message: "read response body", Err: err}
	}

	var resp Response
	jsonErr := json.Unmarshal(raw, &resp)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		msg := resp.Message
		if jsonErr != nil || msg == "" {
			msg = fmt.Sprintf("Server error: %d", httpResp.StatusCode)
		}
		return nil, &TransportError{StatusCode: httpResp.StatusCode, Message: msg}
	}
	if jsonErr != nil {
		return nil, &TransportError{StatusCode: httpResp.StatusCode, Message: "malformed response body", Err: jsonErr}
	}
	return &resp, nil
}

func (c *Client) observe(endpoint string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.Requests.WithLabelValues(endpoint, outcome).Inc()
	c.metrics.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func multipartBody(container []byte, fields []field) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="audio"; filename="recording.wav"`)
	h.Set("Content-Type", "audio/wav")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(container); err != nil {
		return nil, "", err
	}

	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
