// Package changelog implements the append-only, hash-chained mutation
// history described in spec §4.7. It generalizes the teacher's history
// package (history/service.go's INSERT-only audit rows) with canonical
// JSON hashing, chain verification, and UNDO synthesis.
package changelog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Action identifies the kind of mutation a record represents.
type Action string

const (
	Create Action = "CREATE"
	Update Action = "UPDATE"
	Delete Action = "DELETE"
	Undo   Action = "UNDO"
)

// Record is one append-only change-log entry (spec §4.7). PayloadBefore
// and PayloadAfter are opaque JSON-able values (typically
// map[string]any); either may be nil depending on Action.
type Record struct {
	ID            int64  `json:"id"`
	Timestamp     string `json:"timestamp"` // RFC3339, assigned at append time
	CorrelationID string `json:"correlation_id"`
	Actor         string `json:"actor"`
	EntityType    string `json:"entity_type"`
	EntityID      string `json:"entity_id"`
	Action        Action `json:"action"`
	PayloadBefore any    `json:"payload_before,omitempty"`
	PayloadAfter  any    `json:"payload_after,omitempty"`

	// UndoesID, when nonzero, identifies the record this UNDO record
	// reverses. Zero for every non-UNDO record.
	UndoesID int64 `json:"undoes_id,omitempty"`

	PreviousHash string `json:"previous_hash"`
	Hash         string `json:"hash"`
}

// Chain is an in-memory append-only sequence of records, genesis-first.
type Chain struct {
	records []Record
	nextID  int64
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{nextID: 1}
}

// genesisHash is the previous_hash of the first record in any chain.
const genesisHash = ""

// Append computes the record's hash over its canonical JSON form chained
// to the current tip, assigns it the next monotonic id, and appends it.
// now is injected by the caller (the core performs no wall-clock reads of
// its own, per spec §5's purity requirement).
func Append(chain *Chain, rec Record, now time.Time) (Record, error) {
	rec.ID = chain.nextID
	rec.Timestamp = now.UTC().Format(time.RFC3339Nano)
	if len(chain.records) == 0 {
		rec.PreviousHash = genesisHash
	} else {
		rec.PreviousHash = chain.records[len(chain.records)-1].Hash
	}
	rec.Hash = ""
	canonical, err := canonicalJSON(rec)
	if err != nil {
		return Record{}, fmt.Errorf("changelog: canonicalize record: %w", err)
	}
	rec.Hash = hashOf(rec.PreviousHash, canonical)

	chain.records = append(chain.records, rec)
	chain.nextID++
	return rec, nil
}

// LoadChain reconstructs a Chain from records persisted elsewhere (the
// store package's history table), in append order, for VerifyChain or for
// resuming Append at the correct next id.
func LoadChain(records []Record) *Chain {
	nextID := int64(1)
	if len(records) > 0 {
		nextID = records[len(records)-1].ID + 1
	}
	return &Chain{records: records, nextID: nextID}
}

// HashNext computes the (previous_hash, hash) pair for rec appended after
// tipHash, without requiring the full chain in memory. This is the
// primitive a SQL-backed store uses: it persists one row per Append and
// need not keep every prior record resident to compute the next link.
func HashNext(tipHash string, rec Record, now time.Time, id int64) (Record, error) {
	rec.ID = id
	rec.Timestamp = now.UTC().Format(time.RFC3339Nano)
	rec.PreviousHash = tipHash
	rec.Hash = ""
	canonical, err := canonicalJSON(rec)
	if err != nil {
		return Record{}, fmt.Errorf("changelog: canonicalize record: %w", err)
	}
	rec.Hash = hashOf(rec.PreviousHash, canonical)
	return rec, nil
}

func hashOf(previousHash string, canonicalRecord []byte) string {
	h := sha256.New()
	h.Write([]byte(previousHash))
	h.Write([]byte("|"))
	h.Write(canonicalRecord)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalJSON serializes rec with sorted object keys and no insignificant
// whitespace, with Hash cleared, so Append and VerifyChain compute the
// identical byte sequence to hash.
func canonicalJSON(rec Record) ([]byte, error) {
	rec.Hash = ""
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return marshalCanonical(generic)
}

// marshalCanonical re-encodes a decoded JSON value with object keys sorted,
// since encoding/json does not itself guarantee key order for map[string]any.
func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := []byte("{")
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			out = append(out, kb...)
			out = append(out, ':')
			vb, err := marshalCanonical(val[k])
			if err != nil {
				return nil, err
			}
			out = append(out, vb...)
		}
		out = append(out, '}')
		return out, nil
	case []any:
		out := []byte("[")
		for i, e := range val {
			if i > 0 {
				out = append(out, ',')
			}
			eb, err := marshalCanonical(e)
			if err != nil {
				return nil, err
			}
			out = append(out, eb...)
		}
		out = append(out, ']')
		return out, nil
	default:
		return json.Marshal(val)
	}
}

// VerifyResult is the outcome of VerifyChain.
type VerifyResult struct {
	IsValid       bool
	TotalEntries  int
	FirstBrokenID int64 // 0 when IsValid
}

// VerifyChain recomputes every record's hash from the genesis record and
// reports the first id where the recomputed hash diverges.
func VerifyChain(chain *Chain) VerifyResult {
	result := VerifyResult{TotalEntries: len(chain.records), IsValid: true}
	previousHash := genesisHash
	for _, rec := range chain.records {
		if rec.PreviousHash != previousHash {
			result.IsValid = false
			result.FirstBrokenID = rec.ID
			return result
		}
		canonical, err := canonicalJSON(rec)
		if err != nil {
			result.IsValid = false
			result.FirstBrokenID = rec.ID
			return result
		}
		want := hashOf(rec.PreviousHash, canonical)
		if want != rec.Hash {
			result.IsValid = false
			result.FirstBrokenID = rec.ID
			return result
		}
		previousHash = rec.Hash
	}
	return result
}

// Records returns the chain's records in append order. The caller must
// not mutate the returned slice's elements' Hash/PreviousHash fields and
// expect VerifyChain to still pass.
func (c *Chain) Records() []Record {
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

// ByID returns the record with the given id, if present.
func (c *Chain) ByID(id int64) (Record, bool) {
	for _, r := range c.records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// IsUndone reports whether any record in the chain is an UNDO referencing
// targetID; records undone this way are hidden from "active" projections
// but remain in the chain (spec §4.7).
func (c *Chain) IsUndone(targetID int64) bool {
	for _, r := range c.records {
		if r.Action == Undo && r.UndoesID == targetID {
			return true
		}
	}
	return false
}

// Synthesize builds the UNDO record for target. The record's Action is
// always UNDO and its UndoesID is target.ID; the inverse mutation is
// carried in its payloads: CREATE is inverted as a delete (payload_after
// moves to payload_before), DELETE as a create (payload_before is restored
// as payload_after), UPDATE as an update with the payloads swapped. The
// caller then Appends the result; an UNDO record is itself logged but is
// never itself undoable (Synthesize refuses to undo an UNDO record).
func Synthesize(target Record, actor, correlationID string) (Record, error) {
	if target.Action == Undo {
		return Record{}, fmt.Errorf("changelog: record %d is itself an UNDO and cannot be undone", target.ID)
	}

	inverse := Record{
		CorrelationID: correlationID,
		Actor:         actor,
		EntityType:    target.EntityType,
		EntityID:      target.EntityID,
		Action:        Undo,
		UndoesID:      target.ID,
	}

	switch target.Action {
	case Create:
		inverse.PayloadBefore = target.PayloadAfter
		inverse.PayloadAfter = nil
	case Delete:
		inverse.PayloadBefore = nil
		inverse.PayloadAfter = target.PayloadBefore
	case Update:
		inverse.PayloadBefore = target.PayloadAfter
		inverse.PayloadAfter = target.PayloadBefore
	default:
		return Record{}, fmt.Errorf("changelog: unknown action %q on record %d", target.Action, target.ID)
	}
	return inverse, nil
}
