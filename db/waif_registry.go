package db

import (
	"fmt"
	"sync/atomic"

	"github.com/tidwall/buntdb"

	"barn/types"
)

// WaifRegistry tracks live waif instances by class, backed by an in-memory
// buntdb store. Waifs are value types with no object ID of their own, so the
// registry keys each registration by an opaque sequence number scoped under
// its class ("class:<id>:<seq>") and relies on buntdb's key-prefix ascend to
// answer count-by-class queries without keeping the waifs themselves around.
type WaifRegistry struct {
	db  *buntdb.DB
	seq int64
}

// NewWaifRegistry opens the in-memory index. Opening never fails for the
// ":memory:" path, but the error is still surfaced for callers that want to
// fall back rather than panic.
func NewWaifRegistry() (*WaifRegistry, error) {
	bdb, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	return &WaifRegistry{db: bdb}, nil
}

// Register records a newly created waif under its class.
func (r *WaifRegistry) Register(classID types.ObjID) {
	if r == nil {
		return
	}
	seq := atomic.AddInt64(&r.seq, 1)
	key := fmt.Sprintf("class:%d:%d", classID, seq)
	r.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, "1", nil)
		return err
	})
}

// Count returns the total number of registered waifs across all classes.
func (r *WaifRegistry) Count() int {
	if r == nil {
		return 0
	}
	total := 0
	r.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("class:*", func(key, value string) bool {
			total++
			return true
		})
	})
	return total
}

// CountByClass returns the number of registered waifs for each class.
func (r *WaifRegistry) CountByClass() map[types.ObjID]int {
	result := make(map[types.ObjID]int)
	if r == nil {
		return result
	}
	r.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("class:*", func(key, value string) bool {
			var classID int64
			var seq int64
			if _, err := fmt.Sscanf(key, "class:%d:%d", &classID, &seq); err == nil {
				result[types.ObjID(classID)]++
			}
			return true
		})
	})
	return result
}

// Close releases the underlying buntdb handle.
func (r *WaifRegistry) Close() error {
	if r == nil {
		return nil
	}
	return r.db.Close()
}
