package server

// Read-only status surface for operators, listening on Config.StatusAddr.
// The address is used as given; it is not checked to be a loopback one. The
// IPC socket remains the only inference interface.

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vasedge/modelhost/server/handler"
)

type statusBody struct {
	ModelID      string           `json:"model_id"`
	ModelName    string           `json:"model_name"`
	ModelVersion string           `json:"model_version"`
	Device       string           `json:"device"`
	State        string           `json:"state"`
	Metrics      handler.Snapshot `json:"metrics"`
}

func (s *Server) startStatusAPI(addr string) error {
	router := httprouter.New()
	router.GET("/api/status", s.httpStatus)
	router.Handler("GET", "/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.httpSrv = &http.Server{Handler: router}
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.Log.Errorf("Status API failed: %v", err)
		}
	}()
	s.Log.Infof("Status API listening on %v", ln.Addr())
	return nil
}

func (s *Server) stopStatusAPI() {
	if s.httpSrv != nil {
		s.httpSrv.Close()
		s.httpSrv = nil
	}
}

func (s *Server) httpStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	body := statusBody{
		ModelID:      s.desc.ModelID,
		ModelName:    s.desc.ModelName,
		ModelVersion: s.desc.ModelVersion,
		Device:       s.rt.Device().String(),
		State:        s.State().String(),
		Metrics:      s.metrics.Snapshot(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&body)
}
