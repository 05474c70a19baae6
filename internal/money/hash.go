package money

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// VerifyHMAC checks sig (lowercase hex) against HMAC-SHA256(body, secret)
// using a constant-time comparison. This must run BEFORE any JSON parsing
// of body — a single flipped bit anywhere in body or sig must reject.
func VerifyHMAC(body []byte, sigHex string, secret []byte) bool {
	want, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	got := mac.Sum(nil)
	return len(want) == len(got) && subtle.ConstantTimeCompare(want, got) == 1
}

// SignHMAC computes hex(HMAC-SHA256(body, secret)), used by test harnesses
// and by components that must re-sign outbound payloads for a collaborator.
func SignHMAC(body []byte, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// RowHash computes the SHA-256 row hash over the canonical JSON form of
// fields. fields must already exclude the hash column itself. Key order is
// fixed by canonicalize (recursive lexicographic sort) so the digest is
// stable regardless of struct field order or map iteration order.
func RowHash(fields map[string]interface{}) (string, error) {
	canon, err := canonicalize(fields)
	if err != nil {
		return "", fmt.Errorf("money: canonicalize row: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize renders v as JSON with object keys sorted recursively and
// numbers/decimals rendered through their canonical String() form (never
// Go's default float formatting), so the same logical row produces the
// same bytes regardless of source language or map ordering.
func canonicalize(v interface{}) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

// normalize walks v, turning maps into sortedMap (a type whose MarshalJSON
// emits keys in sorted order) and leaving everything else for
// encoding/json's default handling. fmt.Stringer values (including
// money.Decimal) are rendered through String() rather than reflected into
// numeric JSON, keeping decimal canonicalization in one place.
func normalize(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(sortedMap, 0, len(t))
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			nv, err := normalize(t[k])
			if err != nil {
				return nil, err
			}
			out = append(out, kv{k, nv})
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			nv, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		return t, nil
	}
}

type kv struct {
	Key string
	Val interface{}
}

// sortedMap marshals as a JSON object with keys emitted in the order they
// were appended (already sorted by normalize).
type sortedMap []kv

func (m sortedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, pair := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(pair.Key)
		if err != nil {
			return nil, err
		}
		valJSON, err := json.Marshal(pair.Val)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}
