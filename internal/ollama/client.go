package ollama

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyResponse      = errors.New("model returned an empty response")
	ErrServiceUnavailable = errors.New("ollama service unavailable")
)

// Recorder riceve l'esito di ogni richiesta di inferenza
type Recorder interface {
	Record(model string, elapsed time.Duration, success bool)
}

// Client è il client per l'API Ollama
type Client struct {
	httpClient    *resty.Client
	statusTimeout time.Duration
	recorder      Recorder
}

// Option è un'opzione per configurare il client
type Option func(*Client)

// WithRecorder registra un Recorder per le statistiche delle richieste
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithStatusTimeout imposta il timeout dei probe di stato
func WithStatusTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.statusTimeout = d
	}
}

// NewClient crea un nuovo client Ollama
func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		httpClient:    resty.New(),
		statusTimeout: 2 * time.Second,
	}

	for _, opt := range opts {
		opt(client)
	}

	client.configureHTTPClient(baseURL)
	return client
}

// configureHTTPClient configura il client HTTP
func (c *Client) configureHTTPClient(baseURL string) {
	c.httpClient.
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	c.httpClient.OnBeforeRequest(func(client *resty.Client, req *resty.Request) error {
		log.Debug().
			Str("method", req.Method).
			Str("url", req.URL).
			Msg("Ollama API request")
		return nil
	})

	c.httpClient.OnAfterResponse(func(client *resty.Client, resp *resty.Response) error {
		log.Debug().
			Int("status", resp.StatusCode()).
			Dur("duration", resp.Time()).
			Msg("Ollama API response")
		return nil
	})
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// Chat esegue una singola richiesta di chat completion.
// Il timeout per-chiamata è governato dal context passato dal chiamante.
func (c *Client) Chat(ctx context.Context, model, systemPrompt, prompt string) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	var out chatResponse

	start := time.Now()
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(chatRequest{Model: model, Messages: messages, Stream: false}).
		SetResult(&out).
		Post("/api/chat")
	elapsed := time.Since(start)

	success := err == nil && resp != nil && !resp.IsError() && out.Message.Content != ""
	if c.recorder != nil {
		c.recorder.Record(model, elapsed, success)
	}

	if err != nil {
		// Errore di trasporto: il backend non è raggiungibile, non è un
		// problema del modello
		return "", fmt.Errorf("chat request for model %s: %w: %w", model, ErrServiceUnavailable, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("chat request for model %s failed with status %d", model, resp.StatusCode())
	}
	if out.Message.Content == "" {
		return "", fmt.Errorf("model %s: %w", model, ErrEmptyResponse)
	}

	return out.Message.Content, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Tags restituisce i nomi dei modelli installati
func (c *Client) Tags(ctx context.Context) ([]string, error) {
	var out tagsResponse

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/api/tags")
	if err != nil {
		return nil, fmt.Errorf("tags request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("tags request failed with status %d", resp.StatusCode())
	}

	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// RunningModel descrive un modello attualmente caricato
type RunningModel struct {
	Name      string `json:"name"`
	Model     string `json:"model"`
	Size      int64  `json:"size"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// Status descrive lo stato del servizio Ollama
type Status struct {
	Service       string         `json:"service"` // online, offline, error
	Version       string         `json:"version"`
	RunningModels []RunningModel `json:"running_models"`
}

// GetStatus verifica lo stato del servizio e i modelli in esecuzione
func (c *Client) GetStatus(ctx context.Context) Status {
	status := Status{
		Service:       "unknown",
		Version:       "unknown",
		RunningModels: []RunningModel{},
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	var version struct {
		Version string `json:"version"`
	}
	resp, err := c.httpClient.R().
		SetContext(probeCtx).
		SetResult(&version).
		Get("/api/version")
	if err != nil {
		status.Service = "offline"
		return status
	}
	if resp.IsError() {
		status.Service = "error"
		return status
	}
	status.Service = "online"
	status.Version = version.Version

	// /api/ps esiste solo nelle versioni recenti: un errore qui non
	// degrada lo stato del servizio
	var ps struct {
		Models []RunningModel `json:"models"`
	}
	resp, err = c.httpClient.R().
		SetContext(probeCtx).
		SetResult(&ps).
		Get("/api/ps")
	if err == nil && !resp.IsError() {
		status.RunningModels = ps.Models
	}

	return status
}
