package misc

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tracklet/goals-service/internal/telemetry/tracing"
	"github.com/tracklet/goals-service/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

type HealthcheckResponse struct {
	Uptime int64 `json:"uptime"`
}

type Handler struct {
	versionInfo string
	startedAt   time.Time
}

func NewHandler(versionInfo string, startedAt time.Time) *Handler {
	return &Handler{
		versionInfo: versionInfo,
		startedAt:   startedAt,
	}
}

func (handler *Handler) SetupRoutes(mainRouter *mux.Router) {
	mainRouter.HandleFunc("/", handler.handleRoot).Methods("GET", "POST", "OPTIONS").Name("root")
	mainRouter.HandleFunc("/version", handler.handleGetVersionInfo).Methods("GET").Name("version")
}

func (handler *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	pkg.WriteTextResponseOK(w, "I'm OK, thanks ;)")
}

// HandleHealthcheck reports the service uptime in whole seconds. It is
// registered on the goals subrouter ahead of the parameterized routes
// and skips authentication.
func (handler *Handler) HandleHealthcheck(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "miscHandler.healthcheck")
	defer span.End()

	resp := HealthcheckResponse{
		Uptime: int64(time.Since(handler.startedAt).Seconds()),
	}
	respJson, err := json.Marshal(resp)
	if err != nil {
		log.Errorf("marshal healthcheck response: %s", err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (handler *Handler) handleGetVersionInfo(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "miscHandler.version")
	defer span.End()

	pkg.WriteTextResponseOK(w, handler.versionInfo)
}
