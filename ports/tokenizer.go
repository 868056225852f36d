package ports

import "github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"

// Tokenizer converts proof tokens to and from signed attestations
type Tokenizer interface {
	TokenToAttestation(token core.Token) (string, error)
	AttestationToToken(attestation string) (core.Token, error)
}
