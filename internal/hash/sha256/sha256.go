// Package sha256 derives deterministic processing ids.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// processingIDHexLen keeps processing ids short enough for URLs and log lines
// while staying collision-safe for a per-user keyspace.
const processingIDHexLen = 32

// ProcessingID derives the deterministic id for one (user, canonical URL)
// ingestion run. The same pair always maps to the same id, which is how a
// second submission finds the live item for its URL.
func ProcessingID(userID, canonicalURL string) string {
	sum := sha256.Sum256([]byte(userID + "|" + canonicalURL))
	return hex.EncodeToString(sum[:])[:processingIDHexLen]
}
