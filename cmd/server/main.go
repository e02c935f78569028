package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/voxel-server/internal/api"
	"github.com/annel0/voxel-server/internal/app"
	"github.com/annel0/voxel-server/internal/audit"
	"github.com/annel0/voxel-server/internal/auth"
	"github.com/annel0/voxel-server/internal/config"
	"github.com/annel0/voxel-server/internal/eventbus"
	"github.com/annel0/voxel-server/internal/logging"
	"github.com/annel0/voxel-server/internal/network"
	"github.com/annel0/voxel-server/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// version подставляется при сборке через -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $GAME_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	logging.SetLogDir(cfg.Logging.GetDir())
	logging.SetConsoleLevel(logging.ParseLevel(cfg.Logging.GetLevel()))
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	if err := logging.GetLoggerManager().ApplyLevels(cfg.Logging.GetComponents()); err != nil {
		log.Fatalf("❌ %v", err)
	}

	if err := run(cfg); err != nil {
		logging.Error("❌ %v", err)
		logging.GetLoggerManager().CloseAll()
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
	logging.GetLoggerManager().CloseAll()
}

func run(cfg *config.Config) error {
	logging.Info("🎮 Запуск voxel-server...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === OBSERVABILITY ===
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, observability.Options{
			ServiceName: cfg.Telemetry.GetServiceName(),
			Version:     version,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			SampleRatio: cfg.Telemetry.GetSampleRatio(),
		})
		if err != nil {
			logging.Warn("OpenTelemetry не инициализирован: %v", err)
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logging.Warn("Остановка OpenTelemetry: %v", err)
				}
			}()
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// === EVENT BUS ===
	bus, err := app.OpenEventBus(&cfg.EventBus)
	if err != nil {
		return fmt.Errorf("шина событий: %w", err)
	}
	defer bus.Close()
	eventbus.Init(bus)
	if err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("LoggingListener: %v", err)
	}
	if err := eventbus.RegisterMetrics(bus, registry); err != nil {
		return fmt.Errorf("метрики шины: %w", err)
	}

	events, err := app.OpenAuditLog(&cfg.Audit)
	if err != nil {
		return fmt.Errorf("архив событий: %w", err)
	}
	defer events.Close()
	if _, err := audit.Attach(context.Background(), bus, events); err != nil {
		return fmt.Errorf("подписка архива событий: %w", err)
	}

	// === STORAGE ===
	store, err := app.OpenWorldStore(&cfg.Storage)
	if err != nil {
		return fmt.Errorf("хранилище мира: %w", err)
	}
	defer store.Close()

	grid, err := app.BootstrapWorld(ctx, store, &cfg.World)
	if err != nil {
		return fmt.Errorf("загрузка мира: %w", err)
	}

	positions, err := app.OpenPositionRepo(&cfg.Positions)
	if err != nil {
		return fmt.Errorf("хранилище позиций: %w", err)
	}
	defer positions.Close()

	// === GAME SERVER ===
	game := network.NewGameServer(grid, network.Config{
		MaxPlayers:      cfg.Server.GetMaxPlayers(),
		OneUserPerIP:    cfg.Server.GetOneUserPerIP(),
		BehindProxy:     cfg.Server.GetBehindProxy(),
		AdminIP:         cfg.Server.GetAdminIP(),
		AllowedOrigin:   cfg.Server.GetClientOrigin(),
		GravityInterval: cfg.World.GetGravityInterval(),
	},
		network.WithPositionRepo(positions),
		network.WithRegisterer(registry),
	)

	gameCtx, stopGame := context.WithCancel(context.Background())
	defer stopGame()
	go game.Run(gameCtx)

	saver := app.NewSaver(store, game, cfg.Storage.GetBackend())
	go saver.Run(ctx, cfg.Storage.GetSaveInterval())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", game.HandleConnection)
	wsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.GetPort()),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// === REST API ===
	users := auth.NewMemoryUserRepo()
	if err := seedAdmin(users, &cfg.Auth); err != nil {
		return err
	}
	rest := api.NewRestServer(api.Config{
		Port:          fmt.Sprintf(":%d", cfg.Server.GetRESTPort()),
		UserRepo:      users,
		Game:          game,
		Positions:     positions,
		Events:        events,
		Saver:         saver,
		AllowedOrigin: cfg.Server.GetClientOrigin(),
		Registry:      registry,
	})

	errCh := make(chan error, 2)
	go func() {
		logging.Info("🎮 Игровой websocket слушает %s", wsServer.Addr)
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("websocket сервер: %w", err)
		}
	}()
	go func() {
		if err := rest.Start(); err != nil {
			errCh <- fmt.Errorf("REST API: %w", err)
		}
	}()

	sx, sy, sz := grid.Size()
	logging.Info("✅ Сервер запущен: мир %dx%dx%d, до %d игроков", sx, sy, sz, cfg.Server.GetMaxPlayers())

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал, завершение работы...")
	case runErr = <-errCh:
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Остановка websocket сервера: %v", err)
	}
	if err := rest.Stop(shutdownCtx); err != nil {
		logging.Warn("Остановка REST API: %v", err)
	}

	stopGame()
	<-game.Done()

	if err := saver.SaveFinal(shutdownCtx, grid); err != nil {
		logging.Error("Финальное сохранение мира: %v", err)
	}

	logging.Info("👋 Сервер успешно остановлен")
	return runErr
}

// seedAdmin создаёт учётную запись оператора REST API
func seedAdmin(users *auth.MemoryUserRepo, cfg *config.AuthConfig) error {
	if secret := cfg.GetJWTSecret(); secret != "" {
		if err := auth.SetJWTSecret(secret); err != nil {
			return fmt.Errorf("JWT секрет: %w", err)
		}
	}

	auth.SetTokenTTL(cfg.GetTokenTTL())

	if hash := cfg.GetAdminPasswordHash(); hash != "" {
		if !auth.IsBcryptHash(hash) {
			return fmt.Errorf("ADMIN_PASSWORD_HASH не похож на bcrypt-хеш")
		}
		_, err := users.SeedAdmin(cfg.GetAdminUser(), hash, false)
		return err
	}

	password := auth.GenerateSecureSecret()[:16]
	if _, err := users.SeedAdmin(cfg.GetAdminUser(), password, true); err != nil {
		return err
	}
	logging.Warn("🔐 ADMIN_PASSWORD_HASH не задан, временный пароль %s: %s", cfg.GetAdminUser(), password)
	return nil
}
