package labels

import "github.com/RoaringBitmap/roaring"

// ChangeFlag is a bitmask of change kinds recorded against a label index.
type ChangeFlag uint8

const (
	ChangeAdd ChangeFlag = 1 << iota
	ChangeRemove
	ChangeIdentifier
	ChangeDefinition
	ChangeRelated
)

const changeFlagCount = 5

// ChangeLog accumulates per-index change flags for one transaction. Flags
// union monotonically: recording the same change twice is idempotent. The
// log is extracted and reset by the owning region at transaction
// boundaries.
type ChangeLog struct {
	flags   [changeFlagCount]*roaring.Bitmap
	summary ChangeFlag

	// allChange is set when the whole set was cleared or destroyed and
	// per-index tracking is meaningless.
	allChange bool
}

// NewChangeLog creates an empty change log.
func NewChangeLog() *ChangeLog {
	cl := &ChangeLog{}
	for i := range cl.flags {
		cl.flags[i] = roaring.New()
	}
	return cl
}

// Record unions change into the flags for index.
func (cl *ChangeLog) Record(index int, change ChangeFlag) {
	if index < 0 {
		return
	}
	for bit := 0; bit < changeFlagCount; bit++ {
		if change&(1<<bit) != 0 {
			cl.flags[bit].Add(uint32(index))
		}
	}
	cl.summary |= change
}

// Change returns the accumulated flags for index. Under all-change mode
// every index reports the summary.
func (cl *ChangeLog) Change(index int) ChangeFlag {
	if cl.allChange {
		return cl.summary
	}
	var change ChangeFlag
	for bit := 0; bit < changeFlagCount; bit++ {
		if cl.flags[bit].Contains(uint32(index)) {
			change |= 1 << bit
		}
	}
	return change
}

// Summary returns the union of all flags recorded this transaction.
func (cl *ChangeLog) Summary() ChangeFlag { return cl.summary }

// Count returns the number of indices carrying change.
func (cl *ChangeLog) Count(change ChangeFlag) int {
	union := roaring.New()
	for bit := 0; bit < changeFlagCount; bit++ {
		if change&(1<<bit) != 0 {
			union.Or(cl.flags[bit])
		}
	}
	return int(union.GetCardinality())
}

// SetAllChange switches the log to all-change mode with the given summary.
func (cl *ChangeLog) SetAllChange(change ChangeFlag) {
	cl.allChange = true
	cl.summary |= change
}

// IsAllChange reports whether the log is in all-change mode.
func (cl *ChangeLog) IsAllChange() bool { return cl.allChange }

// Clear resets the log for the next transaction.
func (cl *ChangeLog) Clear() {
	for i := range cl.flags {
		cl.flags[i].Clear()
	}
	cl.summary = 0
	cl.allChange = false
}
