package cdc

import "encoding/json"

// Row is the fixed columnar shape every event is flattened into before
// serialization: a stable schema of known columns plus a JSON blob of
// whatever the event-specific payload carried.
type Row struct {
	EventID     string
	EventType   string
	Source      string
	TimestampMs int64
	Sequence    uint64
	Version     int
	PayloadJSON string
}

// Transform flattens a batch of Events into Rows. A payload that fails to
// marshal degrades to an empty object rather than aborting the whole batch,
// since one malformed event shouldn't sink its neighbours.
func Transform(events []Event) []Row {
	rows := make([]Row, 0, len(events))
	for _, ev := range events {
		payloadJSON := "{}"
		if b, err := json.Marshal(ev.Payload); err == nil {
			payloadJSON = string(b)
		}
		rows = append(rows, Row{
			EventID:     ev.ID,
			EventType:   string(ev.Type),
			Source:      ev.Source,
			TimestampMs: ev.TimestampMs,
			Sequence:    ev.Sequence,
			Version:     ev.Version,
			PayloadJSON: payloadJSON,
		})
	}
	return rows
}
