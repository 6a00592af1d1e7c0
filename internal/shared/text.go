package shared

import (
	"crypto/md5" //nolint:gosec // fingerprints only, compared against the aggregator's md5 hashes
	"encoding/hex"
)

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Fingerprint returns the first n hex characters of the md5 digest of s.
func Fingerprint(s string, n int) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // not used for security
	h := hex.EncodeToString(sum[:])
	if n > 0 && n < len(h) {
		return h[:n]
	}
	return h
}
