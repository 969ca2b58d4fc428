package api

import (
	"errors"
	"net/http"

	"github.com/solisoft/solidb-sub010/internal/core"
	"github.com/solisoft/solidb-sub010/internal/routing"
)

// statusFor maps an error returned by internal/core to the HTTP status
// and wire "kind" the taxonomy calls for. Unrecognized errors fall back
// to 500 with kind "internal".
func statusFor(err error) (int, string) {
	var invalidKey *routing.ErrInvalidShardKey
	var unknownColl *routing.ErrUnknownCollection

	switch {
	case errors.Is(err, core.ErrInvalidShardKey), errors.Is(err, core.ErrUnknownCollection),
		errors.As(err, &invalidKey), errors.As(err, &unknownColl):
		return http.StatusBadRequest, "routing"
	case errors.Is(err, core.ErrCrossShardTransaction), errors.Is(err, core.ErrStaleWrite):
		return http.StatusConflict, "consistency"
	case errors.Is(err, core.ErrNoEligibleReplica), errors.Is(err, core.ErrClusterDegraded):
		return http.StatusServiceUnavailable, "topology"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
