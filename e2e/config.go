//go:build e2e

package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// MASTER_HTTP_ADDR is the meeting listener, e.g. localhost:8080
	MasterHTTPAddr string `envconfig:"MASTER_HTTP_ADDR" default:"localhost:8080"`
	MasterGrpcAddr string `envconfig:"MASTER_GRPC_ADDR" default:"localhost:9090"`
	AuthSecret     string `envconfig:"AUTH_SECRET" required:"true"`
	AuthIssuer     string `envconfig:"AUTH_ISSUER" default:"orchestra"`
	// E2E_DEBUG_JSON dumps every websocket frame received
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
