package util

import (
	"crypto/md5"
	"encoding/hex"
)

// MD5Hex computes the MD5 digest of data and returns it hex-encoded.
// The upload endpoint wants the digest declared ahead of the body, so
// callers must hold the full payload in memory anyway.
func MD5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
