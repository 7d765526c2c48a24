package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/yugasun/teus/pkg/docker"
	"github.com/yugasun/teus/pkg/errors"
)

type errorBody struct {
	Message string `json:"message"`
}

type healthBody struct {
	Status string `json:"status"`
	Daemon string `json:"daemon"`
}

// statusFor maps a domain error to the HTTP status returned to callers
func statusFor(err error) int {
	switch errors.TypeOf(err) {
	case errors.NotFound:
		return http.StatusNotFound
	case errors.ConnectionFailed:
		return http.StatusServiceUnavailable
	case errors.TransportIO, errors.FrameError:
		return http.StatusBadGateway
	case errors.ValidationError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	var de *errors.DomainError
	if errors.As(err, &de) {
		message = de.Message
		if de.Cause != nil {
			message += ": " + de.Cause.Error()
		}
	}

	if rec, ok := w.(*statusRecorder); ok {
		rec.err = err
	}

	log.Warn().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request failed")
	writeJSON(w, status, errorBody{Message: message})
}

// listQuery builds the daemon query from ?all= and repeated ?filter=key=value
func listQuery(r *http.Request) (string, error) {
	q := r.URL.Query()

	var all bool
	if raw := q.Get("all"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return "", errors.NewValidationError("api", "invalid value for all: "+raw, err)
		}
		all = parsed
	}

	args, err := docker.ParseFilters(q["filter"])
	if err != nil {
		return "", errors.NewValidationError("api", err.Error(), err)
	}

	encoded, err := docker.ListQuery{All: all, Filters: args}.Encode()
	if err != nil {
		return "", errors.NewValidationError("api", "invalid filters", err)
	}
	return encoded, nil
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	v, err := s.client.Version(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.client.Info(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	pong, err := s.client.Ping(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ping": pong})
}

func (s *Server) handleContainers(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.client.ContainerList(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleContainer(w http.ResponseWriter, r *http.Request) {
	info, err := s.client.ContainerInspect(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleVolumes(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.client.VolumeList(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	vol, err := s.client.VolumeInspect(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vol)
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.client.ImageList(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	query, err := listQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.client.NetworkList(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleHealth reports healthy only while the daemon answers ping
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	pong, err := s.client.Ping(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthBody{Status: "unhealthy", Daemon: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, healthBody{Status: "ok", Daemon: pong})
}
