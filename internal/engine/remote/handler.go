package remote

import (
	"errors"
	"net/http"

	"github.com/chrissnell/paddymap/internal/engine"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// Handler serves region reductions on r for remote clients.
type Handler struct {
	reducer engine.Reducer
	logger  *zap.SugaredLogger
}

// NewHandler returns a worker handler that reduces on r.
func NewHandler(r engine.Reducer, logger *zap.SugaredLogger) *Handler {
	return &Handler{reducer: r, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var rr engine.RegionRequest
	if err := msgpack.NewDecoder(req.Body).Decode(&rr); err != nil {
		http.Error(w, "malformed reduction request", http.StatusBadRequest)
		return
	}
	if err := rr.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.reducer.RegionReduce(req.Context(), &rr)
	if err != nil {
		h.logger.Errorf("region reduction %s failed: %v", rr.Kind, err)
		status := http.StatusUnprocessableEntity
		if errors.Is(err, engine.ErrRetryable) || req.Context().Err() != nil {
			status = http.StatusServiceUnavailable
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", ContentType)
	if err := msgpack.NewEncoder(w).Encode(res); err != nil {
		h.logger.Errorf("error encoding reduction result: %v", err)
	}
}
