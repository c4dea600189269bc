package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"murmur/audio"
	"murmur/backend"
	"murmur/command"
	"murmur/config"
	"murmur/controller"
	"murmur/emit"
	"murmur/engine"
	"murmur/hotkey"
	"murmur/log"
	"murmur/notify"
	"murmur/session"
)

var version = "dev"

func run() {
	configFlag := flag.String("config", "", "Config file path (default: OS config dir)")
	logPathFlag := flag.String("logpath", "", "Log directory path (default: OS-specific location, use ./ for current dir)")
	listFlag := flag.Bool("list-devices", false, "List capture devices and exit")
	backendFlag := flag.String("backend", "", "Override backend kind: streaming or process")
	langFlag := flag.String("lang", "", "Override language code (e.g., en, es, fr)")
	modelFlag := flag.String("model", "", "Override model name")
	deviceFlag := flag.Int("device", -2, "Override capture device index (-1 = system default)")
	notifyFlag := flag.Bool("notify", true, "Show desktop notifications on session changes")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Println("murmur", version)
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *backendFlag != "" {
		cfg.Backend.Kind = *backendFlag
	}
	if *langFlag != "" {
		cfg.Backend.Language = *langFlag
	}
	if *modelFlag != "" {
		cfg.Backend.Model = *modelFlag
	}
	if *deviceFlag >= -1 {
		cfg.Audio.DeviceIndex = *deviceFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logDir, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving log path: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logDir)
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	log.Infof("murmur %s starting, backend=%s lang=%s model=%s",
		version, cfg.Backend.Kind, cfg.Backend.Language, cfg.Backend.Model)

	audioCtx, err := audio.NewContext()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		os.Exit(1)
	}
	defer audioCtx.Close()

	if *listFlag {
		listDevices(audioCtx)
		return
	}

	emitter, err := emit.NewKeyboard()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing keyboard output: %v\n", err)
		os.Exit(1)
	}

	var router *command.Router
	if cmds := cfg.RouterCommands(); len(cmds) > 0 {
		router, err = command.NewRouter(cmds, emitter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid voice commands: %v\n", err)
			os.Exit(1)
		}
		log.Infof("%d voice commands registered", len(cmds))
	}

	backends := map[string]backend.Backend{
		"process": backend.NewProcess(cfg.ProcessConfig()),
	}
	eng, err := engine.New(cfg.EngineOptions())
	if err != nil {
		if cfg.Backend.Kind == "streaming" {
			fmt.Fprintf(os.Stderr, "Error building %s engine: %v\n", cfg.Engine.Kind, err)
			os.Exit(1)
		}
		log.Warnf("streaming backend unavailable: %v", err)
	} else {
		backends["streaming"] = backend.NewStreaming(cfg.StreamingConfig(), audioCtx, eng, router, emitter)
	}

	notifier := notify.New(*notifyFlag)
	ctrl := controller.New(backends, session.LogSink{}, notifier.Failed)
	params := controller.Params{
		Kind:     cfg.Backend.Kind,
		Language: cfg.Backend.Language,
		Model:    cfg.Backend.Model,
	}

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		fmt.Fprintf(os.Stderr, "Error registering hotkey: %v\n", err)
		os.Exit(1)
	}
	defer hk.Unregister()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("murmur ready: Ctrl+Shift+Space toggles dictation")
	loop(ctx, hk, func() { toggle(ctrl, params, notifier) })

	log.Info("shutting down")
	if err := ctrl.Stop(); err != nil {
		log.Errorf("stopping on shutdown: %v", err)
	}
}

// loop runs the main event loop until ctx is cancelled, invoking
// onToggle once per hotkey press.
func loop(ctx context.Context, hk hotkey.Hotkey, onToggle func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-hk.Toggled():
			onToggle()
		}
	}
}

// toggle drives the controller from the hotkey: start when idle, stop
// when running, acknowledge-and-retry after a failure.
func toggle(ctrl *controller.Controller, params controller.Params, notifier *notify.Notifier) {
	switch st, reason := ctrl.State(); st {
	case backend.Active, backend.Starting:
		if err := ctrl.Stop(); err != nil {
			log.Errorf("stop: %v", err)
		}
		notifier.Stopped()
	case backend.Failed:
		log.Infof("acknowledging failure: %s", reason)
		ctrl.Acknowledge()
	case backend.Idle:
		if err := ctrl.Start(params); err != nil {
			log.Errorf("start: %v", err)
			return
		}
		notifier.Started(params.Language, params.Model)
	}
}

func listDevices(audioCtx audio.Context) {
	devices, err := audioCtx.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing devices: %v\n", err)
		os.Exit(1)
	}
	if len(devices) == 0 {
		fmt.Println("No capture devices found.")
		return
	}
	for _, d := range devices {
		def := ""
		if d.IsDefault {
			def = " (default)"
		}
		bt := ""
		if audio.IsBluetooth(d.Name) {
			bt = " (BT!)"
		}
		fmt.Printf("%3d: %s%s%s  %dch @ %d Hz\n", d.Index, d.Name, def, bt, d.Channels, d.SampleRate)
	}
}
