package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"gossip_membership/internal/config"
	"gossip_membership/internal/server"
	"gossip_membership/internal/transport"
	"gossip_membership/internal/utils"
)

func main() {
	var (
		basePath   string
		nodeID     string
		host       string
		port       int
		introducer string
		suspicion  bool
		dropRate   float64
		logLevel   string
		httpPort   int
		interact   bool
	)
	flag.StringVar(&basePath, "prefix", "", "Config file base path")
	flag.StringVar(&nodeID, "id", "", "Node ID (default: random UUID)")
	flag.StringVar(&host, "host", "", "Advertised host")
	flag.IntVar(&port, "port", 0, "UDP port")
	flag.StringVar(&introducer, "introducer", "", "Introducer address host:port")
	flag.BoolVar(&suspicion, "suspicion", false, "Enable the suspicion strategy")
	flag.Float64Var(&dropRate, "drop-rate", 0, "Simulated receive drop rate (0..1)")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.IntVar(&httpPort, "http-port", 0, "Status/metrics HTTP port (0 disables)")
	flag.BoolVar(&interact, "interactive", false, "Read operator commands from stdin")
	flag.Parse()

	// Load MainConfig
	cfg, err := config.LoadMainConfig(basePath)
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	// Flags given on the command line win over the file
	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "id":
			cfg.NodeID = nodeID
		case "host":
			cfg.Host = host
		case "port":
			cfg.Port = port
		case "introducer":
			if err := cfg.SetIntroducer(introducer); err != nil {
				flagErr = err
			}
		case "suspicion":
			cfg.SuspicionEnabled = suspicion
		case "drop-rate":
			cfg.MessageDropRate = dropRate
		case "log-level":
			cfg.LogLevel = logLevel
		case "http-port":
			cfg.HTTPPort = httpPort
		case "interactive":
			cfg.Interactive = interact
		}
	})
	if flagErr != nil {
		log.Fatalf("Invalid flags: %v", flagErr)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	logger, err := utils.NewLogger(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Create logger failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	tr, err := transport.ListenUDP(cfg.SelfAddress(), cfg.MaxDatagramSize)
	if err != nil {
		logger.Fatal("Failed to bind socket", zap.Error(err))
	}
	logger.Info("Socket bound", zap.String("local", tr.BoundAddr()), zap.String("advertised", tr.LocalAddr().String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	node := server.NewNode(cfg, tr, logger)
	if err := node.Join(ctx); err != nil {
		_ = node.Close()
		logger.Fatal("Failed to join cluster", zap.Error(err))
	}

	if cfg.HTTPPort > 0 {
		go func() {
			if err := server.StartStatusServer(ctx, cfg.HTTPPort, node, logger); err != nil {
				logger.Error("Status server failed", zap.Error(err))
			}
		}()
	}

	if cfg.Interactive {
		go func() {
			if err := server.NewConsole(node, os.Stdout).Run(ctx, os.Stdin); err != nil {
				logger.Warn("Operator console stopped", zap.Error(err))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		node.Run(ctx)
		close(done)
	}()

	<-ctx.Done()
	logger.Info("Stopping node...")
	_ = node.Close()
	<-done
	logger.Info("Node stopped")
}
