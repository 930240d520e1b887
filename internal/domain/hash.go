package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainMutationPayload separates payload hashes from any other hash use.
const DomainMutationPayload = "laundrysync/mutation-payload/v1"

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PayloadHash fingerprints a mutation (type + canonical payload). The
// journal stores it so a replay that reuses a mutation_id with a different
// body can be detected and logged.
func PayloadHash(mutationType string, payload []byte) (string, error) {
	canonical, err := CanonicalizeJSON(payload)
	if err != nil {
		return "", fmt.Errorf("payload hash: %w", err)
	}
	data := append([]byte(mutationType+"\x00"), canonical...)
	return hashWithDomain(DomainMutationPayload, data), nil
}
