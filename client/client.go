package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"ORCHESTRA_SERVER_ADDR,default=ws://localhost:8080"`
	MeetingID     string `env:"ORCHESTRA_MEETING_ID,default=demo"`
	Token         string `env:"ORCHESTRA_TOKEN,required=true"`
	LogLevel      string `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run joins a meeting, prints every frame and turns stdin lines into actions:
// claim, release, force, phase <name>, leave.
func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	u := fmt.Sprintf("%s/ws/meetings/%s?token=%s", config.ServerAddress, url.PathEscape(config.MeetingID), url.QueryEscape(config.Token))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	if err := conn.WriteJSON(map[string]string{"type": "join"}); err != nil {
		return exitRuntime, fmt.Errorf("join failed: %w", err)
	}
	color.Cyan.Printf(">>> Joined meeting %s (Ctrl+C to quit)\n", config.MeetingID)

	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			printFrame(data)
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			log.Info("Stopping client...")
			return exitOK, nil
		case err := <-readErr:
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("connection error: %w", err)
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			frame, err := toFrame(line)
			if err != nil {
				color.Yellow.Println(err)
				continue
			}
			if frame == nil {
				continue
			}
			frame["requestId"] = fmt.Sprintf("cli-%d", n)
			if err := conn.WriteJSON(frame); err != nil {
				return exitRuntime, fmt.Errorf("send failed: %w", err)
			}
		}
	}
}

func toFrame(line string) (map[string]string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	switch fields[0] {
	case "claim", "release", "leave":
		return map[string]string{"type": fields[0]}, nil
	case "force":
		return map[string]string{"type": "force_release"}, nil
	case "phase":
		if len(fields) != 2 {
			return nil, fmt.Errorf("usage: phase <name>")
		}
		return map[string]string{"type": "change_phase", "phase": fields[1]}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", fields[0])
	}
}

func printFrame(data []byte) {
	var frame struct {
		Type    string         `json:"type"`
		Data    map[string]any `json:"data"`
		Version *uint64        `json:"version"`
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Sender  string         `json:"sender"`
		Kind    string         `json:"kind"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		color.Red.Printf("unreadable frame: %s\n", data)
		return
	}
	switch frame.Type {
	case "error":
		color.Red.Printf("[error] %s: %s\n", frame.Code, frame.Message)
	case "token_changed":
		color.Green.Printf("[token v%d] %v -> holder %v\n", *frame.Version, frame.Data["event_type"], frame.Data["participant_id"])
	case "phase_changed":
		color.Magenta.Printf("[phase v%d] %v\n", *frame.Version, frame.Data["phase_name"])
	case "signal":
		color.Gray.Printf("[signal] %s from %s\n", frame.Kind, frame.Sender)
	default:
		color.Cyan.Printf("[%s] %v\n", frame.Type, frame.Data)
	}
}
