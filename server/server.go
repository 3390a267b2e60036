package server

// The container orchestrator. Lifecycle is strictly forward-only:
// init -> discovering -> loading -> serving -> draining -> stopped.

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/cyclopcam/logs"
	"github.com/vasedge/modelhost/pkg/modeldesc"
	"github.com/vasedge/modelhost/pkg/nn"
	"github.com/vasedge/modelhost/pkg/nnruntime"
	"github.com/vasedge/modelhost/server/handler"
	"github.com/vasedge/modelhost/server/ipc"
)

type State int32

const (
	StateInit State = iota
	StateDiscovering
	StateLoading
	StateServing
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateDiscovering:
		return "discovering"
	case StateLoading:
		return "loading"
	case StateServing:
		return "serving"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

type Config struct {
	ModelsRoot string // directory scanned for model descriptors
	SocketDir  string // directory for the IPC socket
	ModelID    string // model to serve; may be empty if exactly one is available
	StatusAddr string // loopback address for the status/metrics HTTP API, empty disables
	NoAccel    bool   // ignore any accelerator, force the CPU path
	DrainGrace time.Duration
}

type Server struct {
	Log logs.Log

	cfg      Config
	state    atomic.Int32
	desc     *modeldesc.Descriptor
	rt       nnruntime.Runtime
	metrics  *handler.Metrics
	ipc      *ipc.Server
	httpSrv  *http.Server
	shutdown chan struct{}
}

func NewServer(log logs.Log, cfg Config) *Server {
	if cfg.DrainGrace == 0 {
		cfg.DrainGrace = 5 * time.Second
	}
	return &Server{
		Log:      log,
		cfg:      cfg,
		shutdown: make(chan struct{}),
	}
}

// Run drives the container through its whole lifecycle and blocks until
// shutdown. A non-nil return is startup-fatal; the process should exit
// non-zero without retrying.
func (s *Server) Run() error {
	s.setState(StateDiscovering)
	registry := modeldesc.Discover(s.Log, s.cfg.ModelsRoot)
	desc, err := s.pickModel(registry)
	if err != nil {
		return err
	}
	s.desc = desc

	s.setState(StateLoading)
	accel := !s.cfg.NoAccel && nnruntime.HaveAccelerator()
	device, err := nnruntime.SelectDevice(s.Log, desc.Resources, accel)
	if err != nil {
		return fmt.Errorf("model %v: %w", desc.ModelID, err)
	}
	rt, err := nnruntime.Load(s.Log, desc, device)
	if err != nil {
		return fmt.Errorf("failed to load model %v: %w", desc.ModelID, err)
	}
	s.rt = rt
	defer rt.Close()

	classes := s.loadClassNames(desc)
	s.metrics = handler.NewMetrics(desc.ModelID)
	h := handler.New(s.Log, desc, rt, classes, s.metrics)

	s.ipc = ipc.NewServer(s.Log, s.cfg.SocketDir, desc.ModelID, h)
	if err := s.ipc.Start(); err != nil {
		return err
	}
	if s.cfg.StatusAddr != "" {
		if err := s.startStatusAPI(s.cfg.StatusAddr); err != nil {
			s.ipc.Stop(0)
			return err
		}
	}

	s.setState(StateServing)
	daemon.SdNotify(false, daemon.SdNotifyReady)
	s.Log.Infof("Serving model %v on %v (device %v)", desc.ModelID, s.ipc.Path(), device)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case received := <-sig:
		s.Log.Infof("Received signal %v, draining", received)
	case <-s.shutdown:
		s.Log.Infof("Shutdown requested, draining")
	}
	signal.Stop(sig)

	s.setState(StateDraining)
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	s.ipc.Stop(s.cfg.DrainGrace)
	s.stopStatusAPI()

	s.setState(StateStopped)
	s.Log.Infof("Container stopped")
	return nil
}

// Shutdown triggers the same drain path as an interrupt signal.
func (s *Server) Shutdown() {
	select {
	case <-s.shutdown:
	default:
		close(s.shutdown)
	}
}

func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) setState(state State) {
	s.state.Store(int32(state))
}

// pickModel resolves the configured model id against the discovery registry.
// With no id configured, a registry holding exactly one available model is
// unambiguous; anything else is fatal.
func (s *Server) pickModel(registry *modeldesc.Registry) (*modeldesc.Descriptor, error) {
	if s.cfg.ModelID != "" {
		desc, ok := registry.Available[s.cfg.ModelID]
		if !ok {
			if reason, unavailable := registry.Unavailable[s.cfg.ModelID]; unavailable {
				return nil, fmt.Errorf("model '%v' is unavailable: %v", s.cfg.ModelID, reason)
			}
			return nil, fmt.Errorf("model '%v' was not discovered under %v", s.cfg.ModelID, s.cfg.ModelsRoot)
		}
		return desc, nil
	}
	if len(registry.Available) == 1 {
		for _, desc := range registry.Available {
			return desc, nil
		}
	}
	ids := make([]string, 0, len(registry.Available))
	for id := range registry.Available {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return nil, fmt.Errorf("need exactly one available model when --model is not specified, have %v %v", len(ids), ids)
}

func (s *Server) loadClassNames(desc *modeldesc.Descriptor) []string {
	filename := desc.SchemaString("class_names_file", "")
	if filename == "" {
		return nil
	}
	if !filepath.IsAbs(filename) {
		filename = filepath.Join(desc.Dir, filename)
	}
	classes, err := nn.LoadClassFile(filename)
	if err != nil {
		s.Log.Warnf("Failed to load class names from %v: %v. Detections will use generic names.", filename, err)
		return nil
	}
	s.Log.Infof("Loaded %v class names from %v", len(classes), filename)
	return classes
}
