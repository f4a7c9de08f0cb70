package segment

import (
	"fmt"
	"time"
)

// SlotCount is the number of alternating output targets
const SlotCount = 2

// Slot is one of the two output targets a segment can be recorded into
type Slot struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
}

// Finalized describes a segment whose file is complete and ready for upload
type Finalized struct {
	Slot       Slot          `json:"slot"`
	Sequence   uint64        `json:"sequence"`
	Samples    uint64        `json:"samples"`
	Dropped    uint64        `json:"dropped"`
	RecordedAt time.Time     `json:"recorded_at"`
	Duration   time.Duration `json:"duration"`
}

// Rotation hands out the slots in turn, starting at slot 0
type Rotation struct {
	slots [SlotCount]Slot
	next  int
}

// NewRotation creates the two slots; pathFor maps a slot index to its file path
func NewRotation(pathFor func(int) string) (*Rotation, error) {
	r := &Rotation{}
	for i := range r.slots {
		path := pathFor(i)
		if path == "" {
			return nil, fmt.Errorf("slot %d has no path", i)
		}
		r.slots[i] = Slot{Index: i, Path: path}
	}
	if r.slots[0].Path == r.slots[1].Path {
		return nil, fmt.Errorf("slots must not share a path: %s", r.slots[0].Path)
	}
	return r, nil
}

// Next returns the slot to record into and toggles the rotation
func (r *Rotation) Next() Slot {
	slot := r.slots[r.next]
	r.next = (r.next + 1) % SlotCount
	return slot
}

// Slots returns both slots in index order
func (r *Rotation) Slots() []Slot {
	return r.slots[:]
}
