package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MaxKeyLen — предел длины ключа memcached в байтах.
const MaxKeyLen = 250

// hashedTag — сегмент вместо tag в hashed ключах.
const hashedTag = "h"

// MakeKey строит ключ prefix:tag:blob.
//
// Если ключ длиннее MaxKeyLen, возвращает prefix:h:<sha256 hex>.
// Такие ключи не попадают в QueryKeys.
func MakeKey(prefix, tag, blob string) string {
	raw := prefix + ":" + tag + ":" + blob
	if len(raw) <= MaxKeyLen {
		return raw
	}
	sum := sha256.Sum256([]byte(raw))
	return prefix + ":" + hashedTag + ":" + hex.EncodeToString(sum[:])
}

// ParseKey разбирает plain ключ обратно в (tag, blob).
//
// Ключи с другим prefix и hashed ключи возвращают ok=false. Tag не может
// содержать ':', blob может.
func ParseKey(prefix, key string) (tag, blob string, ok bool) {
	rest, found := strings.CutPrefix(key, prefix+":")
	if !found {
		return "", "", false
	}
	tag, blob, found = strings.Cut(rest, ":")
	if !found || tag == hashedTag {
		return "", "", false
	}
	return tag, blob, true
}

// KeyRef — пара (tag, blob), восстановленная из ключа кэша.
type KeyRef struct {
	Tag  string `json:"tag"`
	Blob string `json:"blob_name"`
}

// matchTag проверяет tag по шаблону: "*" — всё, "x*" — префикс, иначе равенство.
func matchTag(pattern, tag string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if p, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(tag, p)
	}
	return tag == pattern
}
