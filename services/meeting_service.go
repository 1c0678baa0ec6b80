package services

import (
	"context"
	"fmt"
	"log/slog"
	"orchestra/contract"
	"orchestra/domain/meeting"
	"orchestra/errors"
	"orchestra/infrastructure/storage"
	"orchestra/observability"
	"orchestra/permission"
	"orchestra/projection"
	"time"

	"github.com/samber/lo"
)

type IMeetingService interface {
	Handle(ctx context.Context, credential string, roomID meeting.RoomID, sink contract.EventSink, cmd meeting.Command) error
	Disconnect(ctx context.Context, roomID meeting.RoomID, participantID meeting.ParticipantID, sink contract.EventSink)
	Stats(ctx context.Context, credential string, roomID meeting.RoomID) (projection.RoomStats, error)
	Events(ctx context.Context, credential string, roomID meeting.RoomID, cursor *string) ([]storage.RoomEvent, *string, error)
	Rooms(ctx context.Context, credential string) (RoomsReport, error)
}

type IRoomActivity interface {
	Stats(id meeting.RoomID, now time.Time) (projection.RoomStats, error)
}

// IDeliveryStats counts the frames dropped per room on slow connections.
type IDeliveryStats interface {
	Dropped(room meeting.RoomID) uint64
}

// RoomSummary is one line of the live room listing.
type RoomSummary struct {
	RoomID       meeting.RoomID         `json:"room_id"`
	Members      int                    `json:"members"`
	Holder       *meeting.ParticipantID `json:"holder"`
	TokenVersion uint64                 `json:"token_version"`
	Phase        meeting.Phase          `json:"phase"`
	PhaseVersion uint64                 `json:"phase_version"`

	// DroppedFrames counts the frames lost to evicted connections since startup.
	DroppedFrames uint64 `json:"dropped_frames"`
}

type RoomsReport struct {
	Rooms      []RoomSummary                 `json:"rooms"`
	Monitoring observability.MonitoringStats `json:"monitoring"`
}

// MeetingService is the entry point of the transport.
// Every call authenticates its credential again, so a role change or an expired
// token takes effect on the very next action of an open connection.
type MeetingService struct {
	log           *slog.Logger
	authenticator contract.Authenticator
	coordinator   contract.ICoordinator
	activity      IRoomActivity
	repository    storage.IEventRepository
	delivery      IDeliveryStats
	monitoring    *observability.MonitoringManager
}

func NewMeetingService(log *slog.Logger,
	authenticator contract.Authenticator,
	coordinator contract.ICoordinator,
	activity IRoomActivity,
	repository storage.IEventRepository,
	delivery IDeliveryStats,
	monitoring *observability.MonitoringManager) *MeetingService {
	return &MeetingService{
		log:           log,
		authenticator: authenticator,
		coordinator:   coordinator,
		activity:      activity,
		repository:    repository,
		delivery:      delivery,
		monitoring:    monitoring,
	}
}

func (s *MeetingService) Handle(ctx context.Context, credential string, roomID meeting.RoomID, sink contract.EventSink, cmd meeting.Command) error {
	caller, err := s.authenticator.Authenticate(ctx, credential)
	if err != nil {
		return err
	}
	return s.coordinator.Handle(ctx, roomID, caller, sink, cmd)
}

func (s *MeetingService) Disconnect(ctx context.Context, roomID meeting.RoomID, participantID meeting.ParticipantID, sink contract.EventSink) {
	s.coordinator.Disconnect(ctx, roomID, participantID, sink)
}

func (s *MeetingService) Stats(ctx context.Context, credential string, roomID meeting.RoomID) (projection.RoomStats, error) {
	if _, err := s.authorize(ctx, credential, permission.ViewStats); err != nil {
		return projection.RoomStats{}, err
	}
	return s.activity.Stats(roomID, time.Now().UTC())
}

// Events pages the durable log of a room, newest first.
func (s *MeetingService) Events(ctx context.Context, credential string, roomID meeting.RoomID, cursor *string) ([]storage.RoomEvent, *string, error) {
	if _, err := s.authorize(ctx, credential, permission.ExportAudit); err != nil {
		return nil, nil, err
	}
	return s.repository.GetEvents(string(roomID), cursor)
}

func (s *MeetingService) Rooms(ctx context.Context, credential string) (RoomsReport, error) {
	if _, err := s.authorize(ctx, credential, permission.ViewStats); err != nil {
		return RoomsReport{}, err
	}
	report := RoomsReport{
		Rooms: lo.Map(s.coordinator.Rooms(), func(v meeting.View, _ int) RoomSummary {
			summary := RoomSummary{
				RoomID:       v.ID,
				Members:      len(v.Members),
				Holder:       v.Token.Holder,
				TokenVersion: v.Token.Version,
				Phase:        v.Phase.Current,
				PhaseVersion: v.Phase.Version(),
			}
			if s.delivery != nil {
				summary.DroppedFrames = s.delivery.Dropped(v.ID)
			}
			return summary
		}),
	}
	if s.monitoring != nil {
		report.Monitoring = s.monitoring.GetLatest()
	}
	return report, nil
}

func (s *MeetingService) authorize(ctx context.Context, credential string, action permission.Action) (meeting.Caller, error) {
	caller, err := s.authenticator.Authenticate(ctx, credential)
	if err != nil {
		return meeting.Caller{}, err
	}
	if !permission.Evaluate(caller.Role, action) {
		return meeting.Caller{}, fmt.Errorf("%s cannot %s: %w", caller.Role, action, errors.ErrPermissionDenied)
	}
	return caller, nil
}
