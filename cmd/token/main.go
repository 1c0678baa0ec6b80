package main

import (
	"flag"
	"fmt"
	"orchestra/auth"
	"orchestra/domain/meeting"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type Config struct {
	AuthSecret        string        `env:"AUTH_SECRET,required=true"`
	AuthIssuer        string        `env:"AUTH_ISSUER,default=orchestra"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=12h"`
}

// Issues a meeting token for local testing, e.g.
//
//	token -id carol -name Carol -role facilitator
func main() {
	code, err := run()
	if err != nil {
		fmt.Fprint(os.Stderr, color.Red.Sprintf("Token error: %v\n", err))
	}
	os.Exit(code)
}

func run() (int, error) {
	id := flag.String("id", "", "Participant id")
	name := flag.String("name", "", "Display name")
	role := flag.String("role", string(meeting.RoleParticipant), "admin, facilitator, participant or observer")
	flag.Parse()

	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if *id == "" {
		return exitConfig, fmt.Errorf("-id is required")
	}
	r, err := meeting.ParseRole(*role)
	if err != nil {
		return exitConfig, err
	}

	token, err := auth.GenerateToken(config.AuthSecret, config.AuthIssuer, *id, *name, r, config.AuthTokenDuration)
	if err != nil {
		return exitRuntime, err
	}
	fmt.Println(token)
	return exitOK, nil
}
