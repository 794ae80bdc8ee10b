// Package integrity provides tamper-evident hashing for the interview audit
// log. All functions are pure and deterministic.
package integrity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/ashita-ai/monban/internal/model"
)

// Hash version prefix. Length-prefixed field encoding avoids delimiter
// collisions when freeform transcript text contains separator characters.
const hashV1Prefix = "v1:"

// GenesisHash is the prev_hash of the first record in a new audit chain.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// ComputeContentHash produces a versioned SHA-256 hex digest over the
// canonical fields of an audit record. The hash excludes ContentHash and
// PrevHash themselves; chaining is verified separately by VerifyChain.
func ComputeContentHash(rec model.AuditRecord) string {
	h := sha256.New()
	writeField := func(s string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}

	writeField(rec.ID.String())
	writeField(rec.Requester)
	writeField(rec.Channel)
	writeField(rec.Player)
	writeField(strconv.Itoa(rec.Score))
	writeField(strconv.FormatBool(rec.Passed))
	writeField(string(rec.Reason))
	if rec.TimedOutAt != nil {
		writeField(strconv.Itoa(*rec.TimedOutAt))
	} else {
		writeField("")
	}
	writeField(rec.StartedAt.UTC().Format(time.RFC3339Nano))
	writeField(rec.EndedAt.UTC().Format(time.RFC3339Nano))
	writeField(strconv.Itoa(len(rec.Transcript)))
	for _, qa := range rec.Transcript {
		writeField(qa.Question)
		writeField(qa.Answer)
	}

	return hashV1Prefix + hex.EncodeToString(h.Sum(nil))
}

// VerifyContentHash checks whether a stored hash matches the recomputed hash.
func VerifyContentHash(rec model.AuditRecord) bool {
	if !strings.HasPrefix(rec.ContentHash, hashV1Prefix) {
		return false
	}
	return rec.ContentHash == ComputeContentHash(rec)
}

// VerifyChain walks records in append order and checks that every record's
// content hash matches its fields and that every PrevHash links to the
// preceding record's ContentHash (the first record links to GenesisHash).
// Returns ok=true when the whole chain holds; otherwise ok=false and the
// index of the first record that breaks it.
func VerifyChain(records []model.AuditRecord) (ok bool, badIndex int) {
	prev := GenesisHash
	for i, rec := range records {
		if !VerifyContentHash(rec) {
			return false, i
		}
		if rec.PrevHash != prev {
			return false, i
		}
		prev = rec.ContentHash
	}
	return true, -1
}
