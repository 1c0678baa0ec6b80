package internal

import (
	"strings"
	"time"

	"github.com/samber/lo"
)

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,required=true"`
	GrpcPort int    `env:"GRPC_PORT,required=true"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LimitEvents    *int   `env:"LIMIT_EVENTS"`
	DebugPort      int    `env:"DEBUG_PORT,default=8081"`

	BufferSize           int           `env:"BUFFER_SIZE,required=true"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,required=true"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,required=true"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,required=true"`
	LowCapacityThreshold int           `env:"LOW_CAPACITY_THRESHOLD,required=true"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,required=true"`

	AuthSecret        string        `env:"AUTH_SECRET,required=true"`
	AuthIssuer        string        `env:"AUTH_ISSUER,default=orchestra"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=12h"`

	MaxMessageSize int64 `env:"MAX_MESSAGE_SIZE,default=65536"`
	// Comma separated, "*" allows any origin.
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`
}

// Origins splits ALLOWED_ORIGINS, ignoring blanks.
func (c Config) Origins() []string {
	return lo.FilterMap(strings.Split(c.AllowedOrigins, ","), func(o string, _ int) (string, bool) {
		o = strings.TrimSpace(o)
		return o, o != ""
	})
}
