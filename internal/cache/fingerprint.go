package cache

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint derives a deterministic cache key from named request
// parameters. Parameters are hashed in sorted key order, so callers get the
// same key regardless of map iteration order. Returns "" for empty params,
// meaning no cache key can be derived.
func Fingerprint(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s\n", k, params[k])
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// ConsultKey builds the cache key for a multi-tool consultation.
func ConsultKey(params map[string]string) string {
	fp := Fingerprint(params)
	if fp == "" {
		return ""
	}
	return "consult_" + fp
}

// FileHashKey builds the cache key for a subject's file-hash state.
func FileHashKey(subject string) string {
	return "filehash_" + strings.TrimSpace(subject)
}
