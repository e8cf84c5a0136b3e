package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/biodoia/gocouncil/internal/council"
	"github.com/biodoia/gocouncil/pkg/config"
	"github.com/biodoia/gocouncil/pkg/database"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backendLog records the order in which models reach the fake backend
type backendLog struct {
	mu     sync.Mutex
	models []string
}

func (b *backendLog) add(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.models = append(b.models, model)
}

// index returns the position of the first request for the model, or -1
func (b *backendLog) index(model string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, m := range b.models {
		if m == model {
			return i
		}
	}
	return -1
}

// fakeOllama simulates the Ollama HTTP API for end-to-end handler tests.
// advisorDelay slows down every chat call except title generation, so tests
// can observe relative ordering and interrupt streams mid-flight.
func fakeOllama(t *testing.T, advisorDelay time.Duration) (*httptest.Server, *backendLog) {
	t.Helper()

	calls := &backendLog{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/chat":
			var req struct {
				Model    string `json:"model"`
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			calls.add(req.Model)
			if advisorDelay > 0 && req.Model != "title-model" {
				time.Sleep(advisorDelay)
			}

			var system, user string
			for _, m := range req.Messages {
				if m.Role == "system" {
					system = m.Content
				} else {
					user = m.Content
				}
			}

			var content string
			switch {
			case strings.Contains(system, "impartial evaluator"):
				content = "FINAL RANKING:\n1. Response A\n2. Response B\n3. Response C"
			case req.Model == "chairman-model":
				content = "Final synthesized answer."
			case req.Model == "title-model":
				content = "Test Conversation Title"
			default:
				content = "answer from " + req.Model + " to: " + user
			}

			json.NewEncoder(w).Encode(map[string]interface{}{
				"message": map[string]string{"role": "assistant", "content": content},
			})

		case "/api/tags":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"models": []map[string]string{{"name": "mistral:latest"}},
			})

		case "/api/version":
			json.NewEncoder(w).Encode(map[string]string{"version": "0.5.0"})

		case "/api/ps":
			json.NewEncoder(w).Encode(map[string]interface{}{"models": []interface{}{}})

		default:
			http.NotFound(w, r)
		}
	}))

	return server, calls
}

func newTestServer(t *testing.T) *Server {
	srv, _ := newTestServerWithBackend(t, 0)
	return srv
}

func newTestServerWithBackend(t *testing.T, advisorDelay time.Duration) (*Server, *backendLog) {
	t.Helper()

	backend, calls := fakeOllama(t, advisorDelay)
	t.Cleanup(backend.Close)

	cfg := &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8000},
		Database: database.Config{
			Type:       "sqlite",
			Connection: ":memory:",
			LogLevel:   "silent",
		},
		Ollama: config.OllamaConfig{
			BaseURL:        backend.URL,
			RequestTimeout: "5s",
			StatusTimeout:  "1s",
		},
		Council: config.CouncilConfig{
			Advisors: []config.Advisor{
				{ID: "alice", Name: "Alice", Model: "model-a"},
				{ID: "bob", Name: "Bob", Model: "model-b"},
				{ID: "carol", Name: "Carol", Model: "model-c"},
			},
			ChairmanModel: "chairman-model",
			TitleModel:    "title-model",
			RosterFile:    filepath.Join(t.TempDir(), "roster.yaml"),
		},
		Monitoring: config.MonitoringConfig{
			Prometheus: config.PrometheusConfig{Enabled: true},
		},
	}

	db, err := database.New(&cfg.Database)
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { db.Close() })

	srv, err := New(cfg, db)
	require.NoError(t, err)
	return srv, calls
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.app.Test(req, fiber.TestConfig{Timeout: 0})
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	return resp, raw
}

func TestServer_BasicRoutes(t *testing.T) {
	srv := newTestServer(t)

	t.Run("root", func(t *testing.T) {
		resp, _ := doJSON(t, srv, "GET", "/", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("models", func(t *testing.T) {
		resp, raw := doJSON(t, srv, "GET", "/api/models", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Models []string `json:"models"`
		}
		require.NoError(t, json.Unmarshal(raw, &out))
		assert.Equal(t, []string{"mistral:latest"}, out.Models)
	})

	t.Run("monitoring", func(t *testing.T) {
		resp, raw := doJSON(t, srv, "GET", "/api/monitoring", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(raw), `"ollama"`)
		assert.Contains(t, string(raw), `"stats"`)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, _ := doJSON(t, srv, "GET", "/metrics", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestServer_CouncilConfig(t *testing.T) {
	srv := newTestServer(t)

	t.Run("get returns the roster", func(t *testing.T) {
		resp, raw := doJSON(t, srv, "GET", "/api/council/config", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Advisors      []config.Advisor `json:"advisors"`
			ChairmanModel string           `json:"chairman_model"`
		}
		require.NoError(t, json.Unmarshal(raw, &out))
		assert.Len(t, out.Advisors, 3)
		assert.Equal(t, "chairman-model", out.ChairmanModel)
	})

	t.Run("empty roster is rejected", func(t *testing.T) {
		resp, _ := doJSON(t, srv, "POST", "/api/council/config", map[string]interface{}{
			"advisors": []interface{}{},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("duplicate ids are rejected", func(t *testing.T) {
		resp, _ := doJSON(t, srv, "POST", "/api/council/config", map[string]interface{}{
			"advisors": []map[string]string{
				{"id": "x", "name": "X", "model": "m"},
				{"id": "x", "name": "X2", "model": "m"},
			},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("valid update replaces the roster", func(t *testing.T) {
		resp, raw := doJSON(t, srv, "POST", "/api/council/config", map[string]interface{}{
			"advisors": []map[string]string{
				{"id": "dana", "name": "Dana", "model": "model-d"},
			},
			"chairman_model": "new-chairman",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Advisors      []config.Advisor `json:"advisors"`
			ChairmanModel string           `json:"chairman_model"`
		}
		require.NoError(t, json.Unmarshal(raw, &out))
		require.Len(t, out.Advisors, 1)
		assert.Equal(t, "dana", out.Advisors[0].ID)
		assert.Equal(t, "new-chairman", out.ChairmanModel)

		// The update survives through the roster file
		assert.FileExists(t, srv.config.Council.RosterFile)
	})
}

func TestServer_Conversations(t *testing.T) {
	srv := newTestServer(t)

	createConversation := func(t *testing.T) string {
		resp, raw := doJSON(t, srv, "POST", "/api/conversations", nil)
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var out struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(raw, &out))
		require.NotEmpty(t, out.ID)
		return out.ID
	}

	t.Run("create list get delete", func(t *testing.T) {
		id := createConversation(t)

		resp, raw := doJSON(t, srv, "GET", "/api/conversations", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(raw), id)

		resp, _ = doJSON(t, srv, "GET", "/api/conversations/"+id, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = doJSON(t, srv, "DELETE", "/api/conversations/"+id, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = doJSON(t, srv, "GET", "/api/conversations/"+id, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown conversation is 404", func(t *testing.T) {
		resp, _ := doJSON(t, srv, "GET", "/api/conversations/no-such-id", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)

		resp, _ = doJSON(t, srv, "POST", "/api/conversations/no-such-id/message", map[string]string{
			"content": "hello",
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("empty message is rejected", func(t *testing.T) {
		id := createConversation(t)
		resp, _ := doJSON(t, srv, "POST", "/api/conversations/"+id+"/message", map[string]string{
			"content": "   ",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("full deliberation round", func(t *testing.T) {
		id := createConversation(t)

		resp, raw := doJSON(t, srv, "POST", "/api/conversations/"+id+"/message", map[string]string{
			"content": "What should we build?",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Round council.Round `json:"round"`
			Title string        `json:"title"`
		}
		require.NoError(t, json.Unmarshal(raw, &out))

		assert.Len(t, out.Round.Stage1, 3)
		assert.Len(t, out.Round.Stage2, 3)
		require.NotNil(t, out.Round.Stage3)
		assert.Equal(t, "Final synthesized answer.", out.Round.Stage3.Response)
		assert.Equal(t, "Test Conversation Title", out.Title)

		// The round is persisted as user + assistant messages
		resp, raw = doJSON(t, srv, "GET", "/api/conversations/"+id, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var conversation struct {
			Title    string `json:"title"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(raw, &conversation))
		assert.Equal(t, "Test Conversation Title", conversation.Title)
		require.Len(t, conversation.Messages, 2)
		assert.Equal(t, "user", conversation.Messages[0].Role)
		assert.Equal(t, "assistant", conversation.Messages[1].Role)
	})
}

func TestServer_GroupChats(t *testing.T) {
	srv := newTestServer(t)

	createSession := func(t *testing.T, members []string) string {
		resp, raw := doJSON(t, srv, "POST", "/api/group-chats", map[string]interface{}{
			"member_ids": members,
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)

		var out struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(raw, &out))
		return out.ID
	}

	t.Run("unknown member is rejected", func(t *testing.T) {
		resp, _ := doJSON(t, srv, "POST", "/api/group-chats", map[string]interface{}{
			"member_ids": []string{"nobody"},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("message collects member responses", func(t *testing.T) {
		id := createSession(t, []string{"alice", "carol"})

		resp, raw := doJSON(t, srv, "POST", "/api/group-chats/"+id+"/message", map[string]string{
			"content": "hello everyone",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Responses []struct {
				AdvisorID string `json:"advisor_id"`
				Response  string `json:"response"`
			} `json:"responses"`
			Title string `json:"title"`
		}
		require.NoError(t, json.Unmarshal(raw, &out))
		require.Len(t, out.Responses, 2)
		assert.Equal(t, "alice", out.Responses[0].AdvisorID)
		assert.Equal(t, "carol", out.Responses[1].AdvisorID)
		assert.Equal(t, "Test Conversation Title", out.Title)
	})

	t.Run("delete session", func(t *testing.T) {
		id := createSession(t, []string{"bob"})

		resp, _ := doJSON(t, srv, "DELETE", "/api/group-chats/"+id, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		resp, _ = doJSON(t, srv, "GET", "/api/group-chats/"+id, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
