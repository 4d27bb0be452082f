package models

const EventDataUpdated = "data-updated"

// RealtimeEvent is the frame sent over the push channel. Seq increases with
// every data-updated event a store instance emits.
type RealtimeEvent struct {
	Event string         `json:"event"`
	Seq   uint64         `json:"seq"`
	Data  *StatsResponse `json:"data,omitempty"`
}
