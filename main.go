package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/d1nch8g/joyner/audio"
	"github.com/d1nch8g/joyner/audio/pahost"
	"github.com/d1nch8g/joyner/config"
	"github.com/d1nch8g/joyner/control"
	"github.com/d1nch8g/joyner/engine"
	"github.com/d1nch8g/joyner/logging"
	"github.com/d1nch8g/joyner/settings"
	"github.com/d1nch8g/joyner/sound"
)

func main() {
	configFilePath := flag.String("configFilePath", "config.yaml", "path to the config file")
	listOnly := flag.Bool("list", false, "list audio devices and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFilePath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogFile); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logging.Close()

	saved, err := settings.Load(cfg.SettingsFile)
	if err != nil {
		slog.Warn("could not load settings, using defaults", "err", err)
	}

	host := newHost(cfg)
	if err := host.Initialize(); err != nil {
		log.Fatalf("Failed to initialize audio backend %s: %v", cfg.Backend, err)
	}
	defer host.Terminate()

	devices, err := host.Devices()
	if err != nil {
		log.Fatalf("Failed to list audio devices: %v", err)
	}
	printDevices(devices)
	if *listOnly {
		return
	}

	eng := engine.NewEngine(engine.EngineConfig{
		Audio:       audio.GetDefaultConfig(),
		BufferDepth: cfg.BufferDepth,
	}, host, nil)

	session := control.NewSession(eng, saved, os.Stdout)

	fmt.Println("Type help for commands. Press Ctrl-C or type quit to exit.")

	// Setup signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := session.Run(ctx, os.Stdin); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("control session failed", "err", err)
	}

	fmt.Println("\nStopping...")
	if err := settings.Save(cfg.SettingsFile, session.Settings()); err != nil {
		slog.Error("could not save settings", "err", err)
	}
	if err := eng.Stop(); err != nil {
		slog.Error("engine did not stop cleanly", "err", err)
	}
}

func newHost(cfg *config.Config) audio.Host {
	if cfg.Backend == config.BackendFile {
		h := sound.NewFileHost(cfg.FileInputs, cfg.FileOutputs)
		h.Loop = cfg.FileLoop
		return h
	}
	return pahost.New()
}

func printDevices(devices []audio.Device) {
	fmt.Println("Available Devices:")
	for _, d := range devices {
		fmt.Printf("  [%d] %s (in: %d, out: %d)\n", d.Index, d.Name, d.MaxInputChannels, d.MaxOutputChannels)
		slog.Debug("device", "index", d.Index, "name", d.Name, "in", d.MaxInputChannels, "out", d.MaxOutputChannels)
	}
}
