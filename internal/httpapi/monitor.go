package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mdonan90/ClawController/internal/monitor"
	"github.com/mdonan90/ClawController/pkg/cerr"
)

type MonitorServer struct {
	monitor *monitor.Monitor
}

func NewMonitorServer(m *monitor.Monitor) *MonitorServer {
	return &MonitorServer{monitor: m}
}

func (s *MonitorServer) Routes(r chi.Router) {
	r.Post("/monitor/check", s.check)
	r.Get("/monitor/status", s.status)
}

// check runs one stuck-task pass on demand, outside the timer.
func (s *MonitorServer) check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summary, err := s.monitor.RunPass(ctx)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, summary)
}

func (s *MonitorServer) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cerr.SetJSONResponse(ctx, s.monitor.MonitorStatus(ctx))
}
