package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	activityrepo "github.com/mdonan90/ClawController/internal/activity/repositoryimpl"
	agentrepo "github.com/mdonan90/ClawController/internal/agent/repositoryimpl"
	"github.com/mdonan90/ClawController/internal/autotransition"
	"github.com/mdonan90/ClawController/internal/config"
	"github.com/mdonan90/ClawController/internal/eventbus"
	"github.com/mdonan90/ClawController/internal/httpapi"
	"github.com/mdonan90/ClawController/internal/liveness"
	"github.com/mdonan90/ClawController/internal/monitor"
	"github.com/mdonan90/ClawController/internal/notification"
	"github.com/mdonan90/ClawController/internal/pushnotification"
	pushsubrepo "github.com/mdonan90/ClawController/internal/pushsubscription/repositoryimpl"
	"github.com/mdonan90/ClawController/internal/recurring"
	recurringrepo "github.com/mdonan90/ClawController/internal/recurring/repositoryimpl"
	"github.com/mdonan90/ClawController/internal/task"
	taskrepo "github.com/mdonan90/ClawController/internal/task/repositoryimpl"
	"github.com/mdonan90/ClawController/pkg/clog"
	"github.com/mdonan90/ClawController/pkg/storage"

	server "github.com/mdonan90/ClawController/internal"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewHTTPTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	// Setup storage
	var store storage.Storage
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(context.Background(), env.StorageEnv.S3Bucket, env.StorageEnv.S3Prefix, env.StorageEnv.S3Region)
		if err != nil {
			slog.Error("failed to create S3 storage", "error", err)
			os.Exit(1)
		}
	default:
		store, err = storage.NewLocalStorage(env.StorageEnv.BaseDir)
		if err != nil {
			slog.Error("failed to create local storage", "error", err)
			os.Exit(1)
		}
	}

	// Setup event bus
	bus := eventbus.New()

	// Setup repositories
	taskRepo := taskrepo.NewYAMLRepository(store)
	activityRepo := activityrepo.NewYAMLRepository(store)
	agentRepo := agentrepo.NewYAMLRepository(store)
	recurringRepo := recurringrepo.NewYAMLRepository(store)
	pushSubRepo := pushsubrepo.NewYAMLRepository(store)

	// Setup notifier and liveness
	notifier := notification.NewExecNotifier(env.NotifierEnv.Command)
	var livenessSource liveness.Source
	sessionSource := liveness.NewSessionSource(env.LivenessEnv.SessionsDir)
	livenessSource = sessionSource
	if env.LivenessEnv.SessionsDir == "" {
		livenessSource = &liveness.StaticSource{}
	}

	// Setup core components
	stateMachine := task.NewStateMachine(taskRepo, activityRepo, bus)
	engine := autotransition.New(taskRepo, activityRepo, agentRepo, stateMachine, bus, notifier, livenessSource, autotransition.Config{
		LeadAgentFallback: env.NotifierEnv.LeadAgent,
		BoardURL:          env.NotifierEnv.BoardURL,
		PollInterval:      time.Duration(env.LivenessEnv.PollSeconds) * time.Second,
		ActiveWindow:      time.Duration(env.LivenessEnv.ActiveWindowSeconds) * time.Second,
	})
	stuckMonitor := monitor.New(taskRepo, agentRepo, store, notifier, bus, monitor.Config{
		Interval:      time.Duration(env.MonitorEnv.IntervalMinutes) * time.Minute,
		Cooldown:      time.Duration(env.MonitorEnv.CooldownHours) * time.Hour,
		OfflineWindow: time.Duration(env.MonitorEnv.OfflineWindowHours) * time.Hour,
		AlertAgent:    env.NotifierEnv.LeadAgent,
		BoardURL:      env.NotifierEnv.BoardURL,
	})
	scheduler := recurring.NewScheduler(recurringRepo, taskRepo, activityRepo, bus, notifier, recurring.SchedulerConfig{
		Tick:     time.Duration(env.SchedulerEnv.TickSeconds) * time.Second,
		BoardURL: env.NotifierEnv.BoardURL,
	})

	// Setup push notification
	vapidEnv := config.VAPIDEnvFromEnv(env)
	pushSender := pushnotification.NewSender(vapidEnv, pushSubRepo)
	pushDispatcher := pushnotification.NewDispatcher(bus, taskRepo, pushSender)

	// Setup HTTP servers
	taskServer := httpapi.NewTaskServer(taskRepo, activityRepo, agentRepo, stateMachine, engine, bus, notifier, env.NotifierEnv.LeadAgent, env.NotifierEnv.BoardURL)
	agentServer := httpapi.NewAgentServer(agentRepo, livenessSource)
	recurringServer := httpapi.NewRecurringServer(recurringRepo, taskRepo, scheduler)
	monitorServer := httpapi.NewMonitorServer(stuckMonitor)
	eventServer := httpapi.NewEventServer(bus)
	pushServer := httpapi.NewPushServer(pushSubRepo, pushSender, vapidEnv.VAPIDPublicKey)

	srv := server.NewServer(env, taskServer, agentServer, recurringServer, monitorServer, eventServer, pushServer)

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if env.LivenessEnv.SessionsDir != "" {
		go sessionSource.Watch(ctx)
	}
	go engine.Run(ctx)
	go stuckMonitor.Run(ctx)
	go scheduler.Run(ctx)
	go pushDispatcher.Start(ctx)

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	// Give active connections time to finish after stream contexts are cancelled.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}
