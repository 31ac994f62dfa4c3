package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/l1jgo/savemaster/internal/config"
	"github.com/l1jgo/savemaster/internal/core/event"
	coresys "github.com/l1jgo/savemaster/internal/core/system"
	"github.com/l1jgo/savemaster/internal/data"
	"github.com/l1jgo/savemaster/internal/persist"
	"github.com/l1jgo/savemaster/internal/save"
	"github.com/l1jgo/savemaster/internal/scene"
	"github.com/l1jgo/savemaster/internal/scripting"
	"github.com/l1jgo/savemaster/internal/system"
	"github.com/l1jgo/savemaster/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(backend string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            savemaster  v0.1.0             \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m       save slot runtime · Go edition      \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mbackend:\033[0m %s\n\n", backend)
}

// displayWidth counts wide runes as two columns.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		if r > 0x7F {
			w += 2
		} else {
			w++
		}
	}
	return w
}

func printSection(title string) {
	lineLen := 46 - displayWidth(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - displayWidth(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Runtime ───────────────────────────────────────────────────────

// run starts the slot runtime. Arguments name scopes to load at startup.
func run() error {
	// 1. Load config
	cfgPath := "config/savemaster.toml"
	if p := os.Getenv("SAVEMASTER_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()
	for _, key := range cfg.Repaired {
		log.Warn("config value replaced", zap.String("key", key), zap.String("path", cfgPath))
	}

	printBanner(cfg.Storage.Backend)

	// 3. Open storage
	printSection("Storage")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	backend, err := persist.OpenBackend(ctx, cfg.Storage, log)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	slots := persist.NewSlotFiles(persist.SlotFilesOptions{
		Backend:  backend,
		Version:  cfg.Slots.Version,
		Pretty:   cfg.Storage.PrettyPrint,
		Compress: cfg.Storage.Compress,
		MaxSlots: cfg.Slots.MaxSlots,
		Log:      log,
	})
	defer slots.Close()
	printOK(fmt.Sprintf("%s backend ready", cfg.Storage.Backend))
	printStat("Used slots", len(slots.UsedSlots(ctx)))

	prefs := persist.OpenYAMLPrefs(cfg.Runtime.PrefsPath, log)
	fmt.Println()

	// 4. Load templates and script providers
	printSection("Data")

	templates, err := data.LoadTemplateTable(cfg.Runtime.TemplatesPath)
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}
	printStat("Templates", templates.Count())

	scripts, err := scripting.NewEngine(cfg.Runtime.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("scripting: %w", err)
	}
	defer scripts.Close()
	printStat("Script providers", len(scripts.Kinds()))
	fmt.Println()

	// 5. World and slot manager
	bus := event.NewBus()
	state := world.NewState(bus, scripts, log)

	var builder save.Builder
	master := builder.Build(save.Options{
		Slots:     cfg.Slots,
		Storage:   slots,
		Prefs:     prefs,
		Bus:       bus,
		Resolver:  templates,
		Spawner:   state,
		IOTimeout: cfg.Storage.IOTimeout,
		Log:       log,
	})
	defer master.Close()

	event.Subscribe(bus, func(ev event.WriteDone) {
		if ev.Err == nil {
			log.Info("slot written", zap.Int("slot", ev.Slot))
		}
	})
	event.Subscribe(bus, func(ev event.SlotChangeDone) {
		log.Info("slot active", zap.Int("slot", ev.Slot))
	})

	// 6. Create systems and register with runner
	runner := coresys.NewRunner(log)
	autosave := system.NewAutoSaveSystem(master, log, cfg.Runtime.AutoSaveIntervalTicks)
	runner.Register(system.NewEventDispatchSystem(bus))
	runner.Register(system.NewLifecycleSystem(bus, master, state))
	runner.Register(autosave)
	runner.Register(system.NewCleanupSystem(state.World, log))

	master.Start()
	printSection("Scopes")
	for _, name := range os.Args[1:] {
		sc := state.LoadScope(name)
		placed := 0
		path := scene.PathFor(cfg.Runtime.ScenesDir, sc.Name)
		if sf, err := scene.Load(path); err == nil {
			placed = scene.Populate(sf, templates, state, sc, log)
		} else if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("scene file unreadable", zap.String("path", path), zap.Error(err))
		}
		printStat(sc.Name, placed)
	}
	fmt.Println()

	// 7. Start tick loop（關機時先等背景存檔，再做最後一次同步寫入）
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Runtime.TickRate)
	defer ticker.Stop()

	printSection("Ready")
	if master.HasActiveSave() {
		printReady(fmt.Sprintf("slot %d active", master.ActiveSlot()))
	} else {
		printReady("no slot active")
	}
	printReady(fmt.Sprintf("tick loop started (tick: %s)", cfg.Runtime.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Runtime.TickRate)
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			runner.TickPhase(coresys.PhaseCleanup, 0)
			autosave.Flush()
			master.Quit()
			state.UnloadAll()
			log.Info("savemaster stopped")
			return nil
		}
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
