// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package files

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"io"

	"github.com/anchorage-ai/anchorage/services/gateway/datatypes"
)

// digestWriter computes md5, sha256, and a 64-bit simhash in one pass.
// MD5 and SHA-256 identify exact duplicates; the simhash fingerprint
// stays close for near-duplicate content, which lets the catalog flag
// lightly edited re-uploads.
type digestWriter struct {
	md5h    io.Writer
	sha256h io.Writer
	sim     *simHasher

	md5sum    func() []byte
	sha256sum func() []byte
}

func newDigestWriter() *digestWriter {
	m := md5.New()
	s := sha256.New()
	return &digestWriter{
		md5h:      m,
		sha256h:   s,
		sim:       newSimHasher(),
		md5sum:    func() []byte { return m.Sum(nil) },
		sha256sum: func() []byte { return s.Sum(nil) },
	}
}

func (d *digestWriter) Write(p []byte) (int, error) {
	d.md5h.Write(p)
	d.sha256h.Write(p)
	d.sim.Write(p)
	return len(p), nil
}

func (d *digestWriter) Checksums() datatypes.FileChecksums {
	return datatypes.FileChecksums{
		MD5:     hex.EncodeToString(d.md5sum()),
		SHA256:  hex.EncodeToString(d.sha256sum()),
		SimHash: fmt.Sprintf("%016x", d.sim.Sum64()),
	}
}

// simHasher computes a streaming simhash: every overlapping 8-byte
// shingle is hashed with FNV-1a, and each of its 64 bits votes on the
// corresponding fingerprint bit.
type simHasher struct {
	votes [64]int64
	// carry holds the last shingleSize-1 bytes across Write calls so
	// shingles spanning chunk boundaries are not lost.
	carry []byte
}

const shingleSize = 8

func newSimHasher() *simHasher {
	return &simHasher{carry: make([]byte, 0, shingleSize-1)}
}

func (s *simHasher) Write(p []byte) (int, error) {
	buf := p
	if len(s.carry) > 0 {
		buf = append(append(make([]byte, 0, len(s.carry)+len(p)), s.carry...), p...)
	}
	for i := 0; i+shingleSize <= len(buf); i++ {
		h := fnv.New64a()
		h.Write(buf[i : i+shingleSize])
		sum := h.Sum64()
		for bit := 0; bit < 64; bit++ {
			if sum&(1<<uint(bit)) != 0 {
				s.votes[bit]++
			} else {
				s.votes[bit]--
			}
		}
	}
	tail := len(buf) - (shingleSize - 1)
	if tail < 0 {
		tail = 0
	}
	s.carry = append(s.carry[:0], buf[tail:]...)
	return len(p), nil
}

func (s *simHasher) Sum64() uint64 {
	var out uint64
	for bit := 0; bit < 64; bit++ {
		if s.votes[bit] > 0 {
			out |= 1 << uint(bit)
		}
	}
	return out
}

// HammingDistance counts differing bits between two hex-encoded simhash
// fingerprints. Small distances indicate near-duplicate content.
func HammingDistance(a, b string) (int, error) {
	var x, y uint64
	if _, err := fmt.Sscanf(a, "%x", &x); err != nil {
		return 0, fmt.Errorf("bad simhash %q: %w", a, err)
	}
	if _, err := fmt.Sscanf(b, "%x", &y); err != nil {
		return 0, fmt.Errorf("bad simhash %q: %w", b, err)
	}
	diff := x ^ y
	count := 0
	for diff != 0 {
		diff &= diff - 1
		count++
	}
	return count, nil
}
