//go:generate go run go.uber.org/mock/mockgen -source=event_repository.go -destination=../../mocks/mock_event_repository.go -package=mocks
package storage

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const EventPrefix = "evt:"

type IEventRepository interface {
	StoreEvent(e RoomEvent) error
	GetEvents(room string, cursor *string) ([]RoomEvent, *string, error)
}

// RoomEvent is the durable form of an accepted room event.
type RoomEvent struct {
	ID          uuid.UUID
	Room        string
	Type        string
	Participant string
	Version     uint64
	// Seq orders the events of a room, including those stamped with the same instant.
	Seq         uint64
	Data        map[string]any
	At          time.Time
}

type EventRepository struct {
	db          *badger.DB
	log         *slog.Logger
	limitEvents *int
}

func NewEventRepository(db *badger.DB, log *slog.Logger, limitEvents *int) EventRepository {
	return EventRepository{db: db, log: log, limitEvents: limitEvents}
}

// StoreEvent persists an event in BadgerDB.
// The key is formatted as "evt:{len(room_id)}:{room_id}:{seq_padded}" to:
//  1. Ensure history order using 20-digit zero padding (lexicographical order).
//  2. Keep the prefix of a room from matching another room id it is a prefix of.
func (r EventRepository) StoreEvent(e RoomEvent) error {
	record, err := toRecord(e)
	if err != nil {
		return err
	}
	bytes, err := proto.Marshal(record)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(eventKey(e)), bytes)
	})
}

// GetEvents pages the events of a room, newest first.
// The returned cursor is the key suffix of the last event read and resumes right after it.
// It is nil once nothing is left to read.
func (r EventRepository) GetEvents(room string, cursor *string) ([]RoomEvent, *string, error) {
	var rawEvents [][]byte
	var lastKey string
	err := r.db.View(func(txn *badger.Txn) error {
		prefixStr := roomPrefix(room)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Newest possible position, then walk backwards
			seekKey = append(prefix, []byte("99999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if r.limitEvents != nil && len(rawEvents) == *r.limitEvents {
				r.log.Debug(fmt.Sprintf("Maximum of %d events reached", *r.limitEvents))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			err := item.Value(func(value []byte) error {
				rawEvents = append(rawEvents, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	events := make([]RoomEvent, 0, len(rawEvents))
	for _, b := range rawEvents {
		e, err := Decode(b)
		if err != nil {
			return nil, nil, err
		}
		events = append(events, e)
	}
	if lastKey == "" {
		return events, nil, nil
	}
	return events, &lastKey, nil
}

func roomPrefix(room string) string {
	return fmt.Sprintf("%s%d:%s:", EventPrefix, len(room), room)
}

func eventKey(e RoomEvent) string {
	return fmt.Sprintf("%s%020d", roomPrefix(e.Room), e.Seq)
}

func toRecord(e RoomEvent) (*structpb.Struct, error) {
	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	return structpb.NewStruct(map[string]any{
		"id":          e.ID.String(),
		"room":        e.Room,
		"type":        e.Type,
		"participant": e.Participant,
		"version":     float64(e.Version),
		"seq":         strconv.FormatUint(e.Seq, 10),
		"at":          e.At.UTC().Format(time.RFC3339Nano),
		"data":        data,
	})
}

// Decode turns a stored value back into a RoomEvent.
func Decode(value []byte) (RoomEvent, error) {
	var record structpb.Struct
	if err := proto.Unmarshal(value, &record); err != nil {
		return RoomEvent{}, err
	}
	fields := record.GetFields()
	id, err := uuid.Parse(fields["id"].GetStringValue())
	if err != nil {
		return RoomEvent{}, err
	}
	at, err := time.Parse(time.RFC3339Nano, fields["at"].GetStringValue())
	if err != nil {
		return RoomEvent{}, err
	}
	seq, err := strconv.ParseUint(fields["seq"].GetStringValue(), 10, 64)
	if err != nil {
		return RoomEvent{}, err
	}
	return RoomEvent{
		ID:          id,
		Room:        fields["room"].GetStringValue(),
		Type:        fields["type"].GetStringValue(),
		Participant: fields["participant"].GetStringValue(),
		Version:     uint64(fields["version"].GetNumberValue()),
		Seq:         seq,
		Data:        fields["data"].GetStructValue().AsMap(),
		At:          at,
	}, nil
}
