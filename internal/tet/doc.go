// Package tet computes Text Entry Throughput (TET), an information-theoretic
// metric for text input methods.
//
// Given a presented string, the transcribed string a user produced, and the
// time taken to enter it, TET estimates the information actually conveyed per
// second, independent of the input method:
//
//	throughput = I(X;Y) × transcribed symbols / seconds
//
// The pipeline is:
//
//	FrequencyTable → Distribution → Alignment → Channel → Calculator
//
// An Alignment is derived from the minimum string distance (Levenshtein)
// matrix of the two strings. A Channel turns one alignment into an empirical
// noisy-channel model (insertion, omission, substitution and correct-entry
// rates) and combines it with the reference Distribution to compute the
// conditional entropy H_Y(X) and the mutual information I(X;Y) = H(X) - H_Y(X).
//
// All types are generic over the symbol type, so word- or token-level
// variants reuse the same engine. Strings are handled as []rune.
//
// Reference: Minguri et al., CHI 2019, doi:10.1145/3290605.3300866.
package tet
