package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mama165/sdk-go/database"
)

// EventMapper renders a stored room event as a row of the Badger inspector.
func EventMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	e, err := Decode(val)
	if err != nil {
		row.Detail = "Error: decode failed"
		return row
	}
	row.Type = strings.ToUpper(e.Type)
	row.Detail = Describe(e)
	return row
}

// Describe gives a one-line human summary of an event.
func Describe(e RoomEvent) string {
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+2)
	parts = append(parts, fmt.Sprintf("by=%s", e.Participant), fmt.Sprintf("v=%d", e.Version))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Data[k]))
	}
	return strings.Join(parts, " ")
}
