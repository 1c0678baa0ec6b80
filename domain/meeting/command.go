package meeting

// Command is the closed set of inbound actions a connection may send.
type Command interface {
	command()
}

type ClaimToken struct{}

type ReleaseToken struct{}

type ForceReleaseToken struct{}

type ChangePhase struct {
	Phase string
}

type Join struct {
	ParticipantID   ParticipantID
	ParticipantName string
}

type Leave struct {
	ParticipantID ParticipantID
}

type SignalKind string

const (
	SignalOffer     SignalKind = "offer"
	SignalAnswer    SignalKind = "answer"
	SignalCandidate SignalKind = "candidate"
)

// Signal carries an opaque connection-setup payload to relay to the other members.
type Signal struct {
	Kind    SignalKind
	Payload []byte
}

func (ClaimToken) command()        {}
func (ReleaseToken) command()      {}
func (ForceReleaseToken) command() {}
func (ChangePhase) command()       {}
func (Join) command()              {}
func (Leave) command()             {}
func (Signal) command()            {}
