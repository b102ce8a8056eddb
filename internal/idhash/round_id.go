// Package idhash computes deterministic record identifiers.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeRoundID computes a deterministic round_id using SHA256.
// Formula: SHA256(hour|player_id|session_id|spin_index)
// Returns hex-encoded hash (64 characters).
//
// A replayed hour produces the same IDs, so a second insert of the same
// rounds fails on the primary key instead of double-counting revenue.
func ComputeRoundID(hour, playerID, sessionID int64, spinIndex int) string {
	data := fmt.Sprintf("%d|%d|%d|%d",
		hour,
		playerID,
		sessionID,
		spinIndex,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
