package config

import (
	"fmt"
	"log/slog"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:""`
	HTTPPort string `envconfig:"HTTP_PORT" default:"5001"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"debug"`
	APIKey   string `envconfig:"API_KEY" required:"true"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".clawcontroller/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"clawcontroller/"`
	S3Region string `envconfig:"S3_REGION" default:"us-east-1"`
}

type MonitorEnv struct {
	IntervalMinutes    int `envconfig:"MONITOR_INTERVAL_MINUTES" default:"30"`
	CooldownHours      int `envconfig:"MONITOR_COOLDOWN_HOURS" default:"6"`
	OfflineWindowHours int `envconfig:"MONITOR_OFFLINE_WINDOW_HOURS" default:"6"`
}

type SchedulerEnv struct {
	TickSeconds int `envconfig:"SCHEDULER_TICK_SECONDS" default:"60"`
}

type LivenessEnv struct {
	SessionsDir         string `envconfig:"LIVENESS_SESSIONS_DIR" default:""`
	PollSeconds         int    `envconfig:"LIVENESS_POLL_SECONDS" default:"10"`
	ActiveWindowSeconds int    `envconfig:"LIVENESS_ACTIVE_WINDOW_SECONDS" default:"60"`
}

type NotifierEnv struct {
	Command   string `envconfig:"NOTIFIER_COMMAND" default:"openclaw"`
	LeadAgent string `envconfig:"NOTIFIER_LEAD_AGENT" default:"main"`
	BoardURL  string `envconfig:"NOTIFIER_BOARD_URL" default:"http://localhost:5001"`
}

type VAPIDEnv struct {
	VAPIDPublicKey  string `envconfig:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string `envconfig:"VAPID_PRIVATE_KEY"`
	VAPIDContact    string `envconfig:"VAPID_CONTACT" default:"mailto:admin@localhost"`
}

type Env struct {
	BaseEnv
	StorageEnv
	MonitorEnv
	SchedulerEnv
	LivenessEnv
	NotifierEnv
	VAPIDEnv
}

const namespace = "CLAW"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelDebug
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelDebug
	}
	return level
}

func VAPIDEnvFromEnv(env *Env) *VAPIDEnv {
	return &env.VAPIDEnv
}
