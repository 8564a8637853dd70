// internal/tiered/entry.go
//
// Cache entries and their shared-tier encoding.
//
// Context
// -------
// An entry moves through three states:
//
//	Fresh   now <  FreshUntil
//	Stale   FreshUntil <= now < ExpiresAt
//	Absent  after ExpiresAt, or once evicted
//
// ExpiresAt is FreshUntil plus the cache's stale window, so a stale entry
// remains available for stale-while-revalidate.
//
// L2 stores a small JSON envelope rather than the bare value so a promoted
// entry keeps its original write time and freshness deadline:
//
//	{"v": <value>, "set_at": <unix ms>, "fresh_until": <unix ms>}
//
// Envelopes at or above the compression threshold are gzipped.  Gzip output
// starts with 0x1f 0x8b, which JSON never does, so decode can tell the two
// apart without a flag byte.
package tiered

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"time"
)

// Tier names where an entry was found.
type Tier uint8

const (
	TierNone Tier = iota
	TierL1
	TierL2
)

func (t Tier) String() string {
	switch t {
	case TierL1:
		return "l1"
	case TierL2:
		return "l2"
	default:
		return "none"
	}
}

// Entry is a cached value plus its freshness metadata.
type Entry[V any] struct {
	Value      V
	SetAt      time.Time
	FreshUntil time.Time
	ExpiresAt  time.Time
	Tier       Tier
	Stale      bool
}

// record is what L1 holds.
type record[V any] struct {
	value      V
	setAt      time.Time
	freshUntil time.Time
	expiresAt  time.Time
}

func (r record[V]) entry(tier Tier, now time.Time) Entry[V] {
	return Entry[V]{
		Value:      r.value,
		SetAt:      r.setAt,
		FreshUntil: r.freshUntil,
		ExpiresAt:  r.expiresAt,
		Tier:       tier,
		Stale:      !now.Before(r.freshUntil),
	}
}

//
// L2 envelope
//

// Codec converts values to and from bytes.  JSONCodec is the default.
type Codec[V any] interface {
	Marshal(V) ([]byte, error)
	Unmarshal([]byte) (V, error)
}

// JSONCodec encodes values with encoding/json.
type JSONCodec[V any] struct{}

func (JSONCodec[V]) Marshal(v V) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec[V]) Unmarshal(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}

type envelope struct {
	V          json.RawMessage `json:"v"`
	SetAt      int64           `json:"set_at"`
	FreshUntil int64           `json:"fresh_until"`
}

var gzipMagic = []byte{0x1f, 0x8b}

func encodeEnvelope(payload []byte, setAt, freshUntil time.Time, compressAt int) ([]byte, error) {
	raw, err := json.Marshal(envelope{
		V:          payload,
		SetAt:      setAt.UnixMilli(),
		FreshUntil: freshUntil.UnixMilli(),
	})
	if err != nil {
		return nil, err
	}
	if compressAt <= 0 || len(raw) < compressAt {
		return raw, nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEnvelope(data []byte) (envelope, error) {
	if bytes.HasPrefix(data, gzipMagic) {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return envelope{}, err
		}
		defer zr.Close()
		if data, err = io.ReadAll(zr); err != nil {
			return envelope{}, err
		}
	}
	var env envelope
	err := json.Unmarshal(data, &env)
	return env, err
}
