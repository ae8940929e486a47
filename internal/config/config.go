package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Settings struct {
	ListenAddr   string `envconfig:"LISTEN_ADDR" default:":8000"`
	DataPath     string `envconfig:"DATA_PATH" default:"/app/data"`
	DatabasePath string `envconfig:"DATABASE_PATH" default:"/app/data/zapmux.db"`
	LogPath      string `envconfig:"LOG_PATH" default:""`
	AuthDisabled bool   `envconfig:"AUTH_DISABLED" default:"false"`

	// Wire protocol settings, passed through to the bridge client.
	// Opaque constants as far as the session core is concerned.
	BridgeURL         string        `envconfig:"BRIDGE_URL" default:"ws://127.0.0.1:8055/wire"`
	ConnectTimeout    time.Duration `envconfig:"CONNECT_TIMEOUT" default:"60s"`
	QueryTimeout      time.Duration `envconfig:"QUERY_TIMEOUT" default:"60s"`
	KeepAliveInterval time.Duration `envconfig:"KEEPALIVE_INTERVAL" default:"25s"`

	// Session lifecycle settings
	ReconnectDelay time.Duration `envconfig:"RECONNECT_DELAY" default:"5s"`
	ResyncSchedule string        `envconfig:"RESYNC_SCHEDULE" default:"@every 10m"`
}

var Cfg Settings

func Load() {
	if err := envconfig.Process("ZAPMUX", &Cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
}
