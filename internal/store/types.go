// Package store provides SQLite-based storage for tetmeter distributions and
// throughput results.
package store

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// DistributionInfo summarizes a stored distribution.
type DistributionInfo struct {
	ID        int64
	Name      string
	Symbols   int
	Entropy   float64
	CreatedAt int64
}

// ResultRecord is one evaluated trial.
type ResultRecord struct {
	ID           int64
	Fingerprint  [32]byte
	Session      string
	TrialID      string
	Participant  string
	Method       string
	Distribution string
	Presented    string
	Transcribed  string
	ElapsedNs    int64

	// Defined is false when the throughput could not be computed; Error
	// then says why and the measures below are zero.
	Defined bool
	Error   string

	Distance           int64
	AlignedLength      int
	Insertion          float64
	Omission           float64
	Substitution       float64
	Correct            float64
	SourceEntropy      float64
	ConditionalEntropy float64
	MutualInformation  float64
	Throughput         float64
	CreatedAt          int64
}

// Fingerprint identifies a computation by its inputs: the distribution name,
// both strings and the elapsed time. Re-evaluating the same inputs yields the
// same fingerprint.
func Fingerprint(distribution, presented, transcribed string, elapsedNs int64) [32]byte {
	h, _ := blake2b.New256(nil)
	for _, field := range []string{distribution, presented, transcribed} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(field)))
		h.Write(n[:])
		h.Write([]byte(field))
	}
	var e [8]byte
	binary.BigEndian.PutUint64(e[:], uint64(elapsedNs))
	h.Write(e[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
