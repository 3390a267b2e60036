package main

import (
	"fmt"
	"os"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/vasedge/modelhost/server"
)

func main() {
	parser := argparse.NewParser("modelhost", "AI model container for the video analytics serving edge")
	modelsRoot := parser.String("m", "models", &argparse.Options{Help: "Directory scanned for model descriptors", Default: "/opt/vas/models"})
	modelID := parser.String("", "model", &argparse.Options{Help: "Model to serve (may be omitted when exactly one model is available)", Default: ""})
	sockDir := parser.String("s", "sockdir", &argparse.Options{Help: "Directory for the IPC socket", Default: "/tmp"})
	statusAddr := parser.String("", "status", &argparse.Options{Help: "Loopback address for the status/metrics HTTP API (empty disables)", Default: ""})
	noAccel := parser.Flag("", "noaccel", &argparse.Options{Help: "Ignore any accelerator and run on the CPU", Default: false})
	drainGrace := parser.Int("", "grace", &argparse.Options{Help: "Shutdown drain grace period, in seconds", Default: 5})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	srv := server.NewServer(logger, server.Config{
		ModelsRoot: *modelsRoot,
		ModelID:    *modelID,
		SocketDir:  *sockDir,
		StatusAddr: *statusAddr,
		NoAccel:    *noAccel,
		DrainGrace: time.Duration(*drainGrace) * time.Second,
	})
	if err := srv.Run(); err != nil {
		logger.Errorf("Fatal: %v", err)
		os.Exit(1)
	}
}
