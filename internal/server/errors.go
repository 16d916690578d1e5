package server

import (
	"log/slog"
	"net/http"
)

func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, status int, message any) {
	data := envelop{"error": message}
	if err := s.writeJSON(w, data, status, nil); err != nil {
		slog.Error(err.Error())
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *Server) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	s.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func (s *Server) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	message := "the server encountered a problem and could not process your request"
	s.errorResponse(w, r, http.StatusInternalServerError, message)
	slog.Error(err.Error())
}

// bundleGoneResponse covers missing, expired and corrupted bundles alike;
// the three must stay indistinguishable on the wire.
func (s *Server) bundleGoneResponse(w http.ResponseWriter, r *http.Request) {
	message := "files not found or already downloaded"
	s.errorResponse(w, r, http.StatusNotFound, message)
}

func (s *Server) incorrectPasswordResponse(w http.ResponseWriter, r *http.Request) {
	message := "incorrect password"
	s.errorResponse(w, r, http.StatusUnauthorized, message)
}

func (s *Server) accessDeniedResponse(w http.ResponseWriter, r *http.Request) {
	message := "access denied"
	s.errorResponse(w, r, http.StatusForbidden, message)
}
