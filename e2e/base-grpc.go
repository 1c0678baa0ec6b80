//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"orchestra/auth"
	"orchestra/domain/meeting"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
)

type BaseSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
}

func (s *BaseSuite) header(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// WithHealth provides a health client of the master within a contextual test step
func (s *BaseSuite) WithHealth(name string, fn func(ctx context.Context, client grpc_health_v1.HealthClient)) {
	s.header(s.T(), name)
	conn, err := grpc.NewClient(s.Config.MasterGrpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.MasterGrpcAddr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fn(ctx, grpc_health_v1.NewHealthClient(conn))
}

// Frame is an outbound frame as received by a client.
type Frame struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Version   *uint64        `json:"version"`
	Sender    string         `json:"sender"`
	Code      string         `json:"code"`
	RequestID string         `json:"requestId"`
}

// Peer is one websocket connection of a participant.
type Peer struct {
	s    *BaseSuite
	id   meeting.ParticipantID
	conn *websocket.Conn
}

// Connect opens a meeting connection with a freshly issued token.
func (s *BaseSuite) Connect(meetingID string, id meeting.ParticipantID, role meeting.Role) *Peer {
	s.header(s.T(), fmt.Sprintf("%s connects as %s", id, role))
	token, err := auth.GenerateToken(s.Config.AuthSecret, s.Config.AuthIssuer, string(id), string(id), role, time.Hour)
	s.Require().NoError(err)

	u := url.URL{Scheme: "ws", Host: s.Config.MasterHTTPAddr, Path: "/ws/meetings/" + meetingID, RawQuery: "token=" + token}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	s.Require().NoError(err, "Failed to open meeting connection at "+u.Host)
	s.T().Cleanup(func() { _ = conn.Close() })
	return &Peer{s: s, id: id, conn: conn}
}

func (p *Peer) Send(frame map[string]any) {
	p.s.Require().NoError(p.conn.WriteJSON(frame))
}

// Expect reads frames until one of type typ arrives.
func (p *Peer) Expect(typ string) Frame {
	for {
		p.s.Require().NoError(p.conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
		_, data, err := p.conn.ReadMessage()
		p.s.Require().NoError(err, "%s waited for %s", p.id, typ)
		if p.s.Config.DebugJSON {
			p.s.T().Logf("%s <- %s", p.id, data)
		}
		var f Frame
		p.s.Require().NoError(json.Unmarshal(data, &f))
		if f.Type == typ {
			return f
		}
	}
}
