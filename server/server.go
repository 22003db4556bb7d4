// Package server serves the users collection over REST:
//
//	GET    /users       list every user, oldest first
//	POST   /users       create a user, the server assigns the id
//	GET    /users/{id}  fetch one user, possibly from a replica
//	PUT    /users/{id}  replace the editable fields of a user
//	DELETE /users/{id}  delete a user
//
// Error responses carry a JSON body of the form {"error": "..."}.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/samandartukhtayev/user-sync/models"
)

// Store is the persistence the service needs; *repository.UserRepository implements it
type Store interface {
	List(ctx context.Context) ([]*models.User, error)
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDFromPrimary(ctx context.Context, id string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
}

// ShardCounter is implemented by stores that can report how users are spread
// over shards; the counts are exported as the usersync_shard_users gauge
type ShardCounter interface {
	CountUsersPerShard(ctx context.Context) (map[int]int, error)
}

// Server is the HTTP front of the users collection
type Server struct {
	store    Store
	logger   logr.Logger
	health   func(ctx context.Context) error
	newID    func() string
	validate *validator.Validate
	registry *prometheus.Registry
	router   *mux.Router
}

// Option configures a Server
type Option func(*Server)

// WithHealthCheck sets the check behind GET /healthz
func WithHealthCheck(check func(ctx context.Context) error) Option {
	return func(s *Server) { s.health = check }
}

// WithLogger sets the logger handed to every request
func WithLogger(logger logr.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithIDGenerator overrides how ids are assigned to new users
func WithIDGenerator(newID func() string) Option {
	return func(s *Server) { s.newID = newID }
}

// New creates a server over the given store
func New(store Store, opts ...Option) *Server {
	s := &Server{
		store:    store,
		logger:   klog.Background(),
		health:   func(context.Context) error { return nil },
		newID:    newUUID,
		validate: newValidator(),
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	m := newMetrics(s.registry, s.logger)
	if counter, ok := store.(ShardCounter); ok {
		s.registry.MustRegister(newShardCollector(counter))
	}

	r := mux.NewRouter()
	r.Use(m.instrument)
	r.Methods(http.MethodGet).Path("/users").HandlerFunc(s.listUsers)
	r.Methods(http.MethodPost).Path("/users").HandlerFunc(s.createUser)
	r.Methods(http.MethodGet).Path("/users/{id}").HandlerFunc(s.getUser)
	r.Methods(http.MethodPut).Path("/users/{id}").HandlerFunc(s.updateUser)
	r.Methods(http.MethodDelete).Path("/users/{id}").HandlerFunc(s.deleteUser)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(s.healthz)
	r.Methods(http.MethodGet).Path("/metrics").Handler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "no such resource")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	s.router = r

	return s
}

// Handler returns the routed handler, for embedding or tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, lis, shutdownTimeout)
}

// Serve accepts connections on lis until ctx is cancelled
func (s *Server) Serve(ctx context.Context, lis net.Listener, shutdownTimeout time.Duration) error {
	logger := klog.FromContext(ctx)

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving users collection", "addr", lis.Addr().String())
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down users collection")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
