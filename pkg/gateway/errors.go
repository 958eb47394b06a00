package gateway

import (
	"errors"
	"net/http"

	"github.com/cuemby/fabrik/pkg/domain"
	"github.com/cuemby/fabrik/pkg/gateway/contenttype"
	"github.com/cuemby/fabrik/pkg/rib"
)

// statusFor maps an error surfaced anywhere in the request pipeline to
// the HTTP status spec.md §7's "User-visible HTTP mappings" table
// assigns it. Falls through to 500 for anything unrecognized, matching
// the table's WorkerCreationFailed/Runtime/Unknown -> 500 catch-all.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var badReq *BadRequest
	if errors.As(err, &badReq) {
		return http.StatusBadRequest
	}
	var evalErr *rib.EvalError
	if errors.As(err, &evalErr) {
		return http.StatusBadRequest
	}
	var illegal *contenttype.IllegalMapping
	if errors.As(err, &illegal) {
		return http.StatusNotAcceptable
	}
	if errors.Is(err, errRouteNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, errCORSViolation) {
		return http.StatusForbidden
	}
	if errors.Is(err, errUnauthorized) {
		return http.StatusUnauthorized
	}

	var werr *domain.WorkerExecutorError
	if errors.As(err, &werr) {
		switch werr.Code {
		case domain.CodeWorkerNotFound:
			return http.StatusNotFound
		case domain.CodeInvalidRequest:
			return http.StatusBadRequest
		case domain.CodeInvalidShardId:
			return http.StatusServiceUnavailable
		case domain.CodeNoLeader:
			return http.StatusServiceUnavailable
		default:
			return http.StatusInternalServerError
		}
	}

	return http.StatusInternalServerError
}

var (
	errRouteNotFound = errors.New("gateway: no route matches this method and path")
	errCORSViolation = errors.New("gateway: CORS policy violation")
	errUnauthorized  = errors.New("gateway: unauthorized")
)

// writeError renders err as a JSON error body with the status statusFor
// computes, matching the error-envelope shape pkg/rpc's wire errors
// already use (Code/Message) so clients get one consistent error JSON
// shape across the HTTP and gRPC legs.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	code := "Unknown"
	var werr *domain.WorkerExecutorError
	if errors.As(err, &werr) {
		code = werr.Code
	} else if errors.Is(err, errRouteNotFound) {
		code = "RouteNotFound"
	} else if errors.Is(err, errCORSViolation) {
		code = "CORSViolation"
	} else if errors.Is(err, errUnauthorized) {
		code = "Unauthorized"
	} else {
		var badReq *BadRequest
		var evalErr *rib.EvalError
		var illegal *contenttype.IllegalMapping
		switch {
		case errors.As(err, &badReq):
			code = "InvalidRequest"
		case errors.As(err, &evalErr):
			code = "InvalidRequest"
		case errors.As(err, &illegal):
			code = "IllegalMapping"
		}
	}
	_, _ = w.Write([]byte(`{"error":"` + code + `","message":"` + jsonEscape(err.Error()) + `"}`))
}

func jsonEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		if c == '\n' {
			out = append(out, ' ')
			continue
		}
		out = append(out, c)
	}
	return string(out)
}
