package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"k8s.io/klog/v2"

	"github.com/samandartukhtayev/user-sync/models"
	"github.com/samandartukhtayev/user-sync/repository"
)

// maxBody bounds request bodies; a user record is tiny
const maxBody = 1 << 16

func newUUID() string {
	return uuid.NewString()
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.List(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeInput(w, r)
	if !ok {
		return
	}

	user := &models.User{ID: s.newID(), Username: in.Username, Age: in.Age, Location: in.Location}
	if err := s.store.Create(r.Context(), user); err != nil {
		s.internalError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// getUser reads through a replica; the record may lag a write it has not seen yet
func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	in, ok := s.decodeInput(w, r)
	if !ok {
		return
	}

	user := &models.User{ID: id, Username: in.Username, Age: in.Age, Location: in.Location}
	if err := s.store.Update(r.Context(), user); err != nil {
		s.storeError(w, r, err)
		return
	}

	stored, err := s.store.GetByIDFromPrimary(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.storeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.health(r.Context()); err != nil {
		klog.FromContext(r.Context()).Error(err, "Health check failed")
		writeError(w, http.StatusServiceUnavailable, "unhealthy")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeInput reads, trims and validates a request body, answering 400 on failure
func (s *Server) decodeInput(w http.ResponseWriter, r *http.Request) (models.UserInput, bool) {
	var in models.UserInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return models.UserInput{}, false
	}

	in = in.Normalize()
	if err := s.validate.Struct(in); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return models.UserInput{}, false
	}
	return in, true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "gt":
			msgs = append(msgs, fe.Field()+" must be a positive number")
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.internalError(w, r, err)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	klog.FromContext(r.Context()).Error(err, "Request failed", "method", r.Method, "url", r.URL.String())
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		klog.Background().Error(err, "Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
