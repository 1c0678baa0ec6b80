package storage

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEventRepository_Store_And_Page_Newest_First(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewEventRepository(db, slog.Default(), lo.ToPtr(2))
	at := time.Now().UTC()

	// Given three events in M1 and one in M2
	events := []RoomEvent{
		{ID: uuid.New(), Room: "M1", Type: "participant_joined", Participant: "alice", Seq: 1, At: at,
			Data: map[string]any{"participant_name": "Alice", "role": "participant"}},
		{ID: uuid.New(), Room: "M1", Type: "token_changed", Participant: "alice", Version: 1, Seq: 2, At: at.Add(time.Second),
			Data: map[string]any{"event_type": "claim", "is_active": true, "holder": "alice"}},
		{ID: uuid.New(), Room: "M1", Type: "token_changed", Participant: "alice", Version: 2, Seq: 3, At: at.Add(2 * time.Second),
			Data: map[string]any{"event_type": "release", "is_active": false, "holder": nil}},
		{ID: uuid.New(), Room: "M2", Type: "participant_joined", Participant: "bob", Seq: 1, At: at},
	}
	for _, e := range events {
		req.NoError(repository.StoreEvent(e))
	}

	// When reading the first page of M1
	page, cursor, err := repository.GetEvents("M1", nil)

	// Then the two newest come back, newest first
	req.NoError(err)
	req.Len(page, 2)
	req.Equal(events[2].ID, page[0].ID)
	req.Equal(events[1].ID, page[1].ID)
	req.Equal(uint64(2), page[0].Version)
	req.Equal("release", page[0].Data["event_type"])
	req.Nil(page[0].Data["holder"])
	req.Equal(true, page[1].Data["is_active"])
	req.True(events[2].At.Equal(page[0].At))

	// When reading the next page
	page, _, err = repository.GetEvents("M1", cursor)

	// Then only the oldest event of M1 is left
	req.NoError(err)
	req.Len(page, 1)
	req.Equal(events[0].ID, page[0].ID)
	req.Equal("Alice", page[0].Data["participant_name"])
}

func TestEventRepository_Room_Id_Prefix_Of_Another(t *testing.T) {
	req := require.New(t)
	repository := NewEventRepository(openTestDB(t), slog.Default(), nil)
	at := time.Now().UTC()

	// Given one event in M1 and one in M1:1
	own := RoomEvent{ID: uuid.New(), Room: "M1", Type: "participant_joined", Participant: "alice", Seq: 1, At: at}
	other := RoomEvent{ID: uuid.New(), Room: "M1:1", Type: "participant_joined", Participant: "intruder", Seq: 2, At: at}
	req.NoError(repository.StoreEvent(own))
	req.NoError(repository.StoreEvent(other))

	// When reading M1
	page, _, err := repository.GetEvents("M1", nil)

	// Then the events of M1:1 stay out
	req.NoError(err)
	req.Len(page, 1)
	req.Equal(own.ID, page[0].ID)

	// And M1:1 still reads its own
	page, _, err = repository.GetEvents("M1:1", nil)
	req.NoError(err)
	req.Len(page, 1)
	req.Equal(other.ID, page[0].ID)
}

func TestEventRepository_Same_Instant_Follows_Seq(t *testing.T) {
	req := require.New(t)
	repository := NewEventRepository(openTestDB(t), slog.Default(), nil)
	at := time.Now().UTC()

	for i := 0; i < 20; i++ {
		room := fmt.Sprintf("R%d", i)
		base := uint64(at.UnixNano())

		// Given a holder leaving: the release and the departure share the same instant
		release := RoomEvent{ID: uuid.New(), Room: room, Type: "token_changed", Participant: "alice", Version: 2, Seq: base + 1, At: at,
			Data: map[string]any{"event_type": "release"}}
		left := RoomEvent{ID: uuid.New(), Room: room, Type: "participant_left", Participant: "alice", Seq: base + 2, At: at}
		req.NoError(repository.StoreEvent(left))
		req.NoError(repository.StoreEvent(release))

		// When replaying the room
		page, _, err := repository.GetEvents(room, nil)

		// Then the departure comes first, newest first, whatever the write order
		req.NoError(err)
		req.Len(page, 2)
		req.Equal("participant_left", page[0].Type)
		req.Equal("token_changed", page[1].Type)
		req.Equal(base+2, page[0].Seq)
	}
}

func TestEventRepository_Unknown_Room(t *testing.T) {
	req := require.New(t)
	repository := NewEventRepository(openTestDB(t), slog.Default(), nil)

	page, cursor, err := repository.GetEvents("nowhere", nil)

	req.NoError(err)
	req.Empty(page)
	req.Nil(cursor)
}

func TestDescribe(t *testing.T) {
	e := RoomEvent{Participant: "facilitator", Version: 2,
		Data: map[string]any{"phase_name": "clarification", "previous_phase": "ideation"}}

	require.Equal(t, "by=facilitator v=2 phase_name=clarification previous_phase=ideation", Describe(e))
}
