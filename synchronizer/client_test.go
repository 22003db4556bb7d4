package synchronizer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samandartukhtayev/user-sync/models"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

func setupTestClient(t *testing.T, handler http.HandlerFunc) (*Client, func() []recordedRequest) {
	t.Helper()

	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{Method: r.Method, Path: r.URL.EscapedPath(), Body: string(body)})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)

	return c, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), requests...)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("http://localhost:5000", nil)
	assert.NoError(t, err)

	_, err = NewClient("/users", nil)
	assert.Error(t, err)

	_, err = NewClient("http://[::1", nil)
	assert.Error(t, err)
}

func TestClient_List(t *testing.T) {
	c, requests := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":"1","username":"ann","age":30,"location":"nyc"},{"_id":"2","username":"bob","age":25,"location":"la"}]`)
	})

	users, err := c.List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []models.User{ann, bob}, users)
	assert.Equal(t, []recordedRequest{{Method: http.MethodGet, Path: "/users"}}, requests())
}

func TestClient_Create(t *testing.T) {
	c, requests := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		writeJSON(w, http.StatusCreated, bob)
	})

	user, err := c.Create(context.Background(), models.UserInput{Username: "bob", Age: 25, Location: "la"})
	require.NoError(t, err)

	assert.Equal(t, bob, user)
	require.Len(t, requests(), 1)
	assert.Equal(t, http.MethodPost, requests()[0].Method)
	assert.Equal(t, "/users", requests()[0].Path)
	assert.JSONEq(t, `{"username":"bob","age":25,"location":"la"}`, requests()[0].Body)
}

func TestClient_CreateWithNumericID(t *testing.T) {
	c, _ := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":2,"username":"bob","age":25,"location":"la"}`)
	})

	user, err := c.Create(context.Background(), models.UserInput{Username: "bob", Age: 25, Location: "la"})
	require.NoError(t, err)
	assert.Equal(t, bob, user)

	s := New(c)
	require.NoError(t, s.Save(context.Background(), models.Draft{Username: "bob", Age: 25, Location: "la"}))
	assert.Equal(t, []models.User{bob}, s.Users())
	assert.Equal(t, Status{Success: "User created"}, s.Status())
}

func TestClient_Update(t *testing.T) {
	c, requests := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, bobby)
	})

	user, err := c.Update(context.Background(), "2", models.UserInput{Username: "bobby", Age: 26, Location: "la"})
	require.NoError(t, err)

	assert.Equal(t, bobby, user)
	require.Len(t, requests(), 1)
	assert.Equal(t, http.MethodPut, requests()[0].Method)
	assert.Equal(t, "/users/2", requests()[0].Path)
	assert.JSONEq(t, `{"username":"bobby","age":26,"location":"la"}`, requests()[0].Body)
}

func TestClient_DeleteEscapesID(t *testing.T) {
	c, requests := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.Delete(context.Background(), "a/b c"))
	assert.Equal(t, []recordedRequest{{Method: http.MethodDelete, Path: "/users/a%2Fb%20c"}}, requests())
}

func TestClient_DeleteAcceptsOKWithBody(t *testing.T) {
	c, _ := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
	})

	assert.NoError(t, c.Delete(context.Background(), "2"))
}

func TestClient_NonSuccessStatus(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{"json error body", http.StatusNotFound, `{"error":"user not found: 9"}`, "user not found: 9"},
		{"plain body", http.StatusInternalServerError, "database unavailable\n", "database unavailable"},
		{"empty body", http.StatusBadGateway, "", ""},
		{"redirect is not success", http.StatusNotModified, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			err := c.Delete(context.Background(), "9")

			var terr *TransportError
			require.ErrorAs(t, err, &terr)
			assert.Equal(t, tt.status, terr.StatusCode)
			assert.Equal(t, tt.wantMessage, terr.Message)
			assert.Equal(t, "delete user", terr.Op)
		})
	}
}

func TestClient_MalformedResponse(t *testing.T) {
	c, _ := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":`)
	})

	_, err := c.List(context.Background())

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Zero(t, terr.StatusCode)
	assert.Error(t, terr.Err)
}

func TestClient_ConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, nil)
	require.NoError(t, err)

	_, err = c.List(context.Background())

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Zero(t, terr.StatusCode)
	assert.Contains(t, terr.Error(), "failed to load users")
}

func TestClient_BaseURLWithPrefix(t *testing.T) {
	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/api/", srv.Client())
	require.NoError(t, err)

	users, err := c.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Equal(t, "/api/users", gotPath.Load())
}

func TestSynchronizer_OverHTTP(t *testing.T) {
	c, _ := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, []models.User{ann})
		case http.MethodPost:
			writeJSON(w, http.StatusCreated, bob)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	s := New(c)
	ctx := context.Background()

	require.NoError(t, s.Refresh(ctx))
	require.NoError(t, s.Save(ctx, models.Draft{Username: "bob", Age: 25, Location: "la"}))
	assert.Equal(t, []models.User{ann, bob}, s.Users())

	err := s.Remove(ctx, "1")
	require.Error(t, err)
	assert.Equal(t, "failed to delete user: server responded 405 Method Not Allowed: method not allowed", s.Status().Error)
	assert.Equal(t, []models.User{ann, bob}, s.Users())
}
