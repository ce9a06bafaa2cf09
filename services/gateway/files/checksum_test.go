// Copyright (C) 2025 Anchorage Systems (eng@anchorage.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package files

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checksumsOf(t *testing.T, content string) (md5hex, sha256hex, simhash string) {
	t.Helper()
	w := newDigestWriter()
	_, err := io.Copy(w, strings.NewReader(content))
	require.NoError(t, err)
	c := w.Checksums()
	return c.MD5, c.SHA256, c.SimHash
}

func TestDigestsMatchKnownValues(t *testing.T) {
	t.Parallel()
	md5hex, sha256hex, sim := checksumsOf(t, "hello world")
	assert.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", md5hex)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", sha256hex)
	assert.Len(t, sim, 16)
}

func TestDigestsStableAcrossChunking(t *testing.T) {
	t.Parallel()
	content := strings.Repeat("streaming chunk boundary test ", 100)

	whole := newDigestWriter()
	_, err := whole.Write([]byte(content))
	require.NoError(t, err)

	chunked := newDigestWriter()
	for i := 0; i < len(content); i += 7 {
		end := i + 7
		if end > len(content) {
			end = len(content)
		}
		_, err := chunked.Write([]byte(content[i:end]))
		require.NoError(t, err)
	}

	assert.Equal(t, whole.Checksums(), chunked.Checksums(),
		"digests must not depend on write chunking")
}

func TestSimHashRanksSimilarity(t *testing.T) {
	t.Parallel()
	base := strings.Repeat("the quarterly revenue grew by twelve percent across all regions ", 30)
	nearDup := strings.Replace(base, "twelve", "eleven", 1)
	unrelated := strings.Repeat("volatile memory pressure triggered compaction of the value log ", 30)

	_, _, baseSim := checksumsOf(t, base)
	_, _, nearSim := checksumsOf(t, nearDup)
	_, _, farSim := checksumsOf(t, unrelated)

	nearDist, err := HammingDistance(baseSim, nearSim)
	require.NoError(t, err)
	farDist, err := HammingDistance(baseSim, farSim)
	require.NoError(t, err)

	assert.Less(t, nearDist, farDist,
		"a one-word edit must score closer than unrelated content")

	self, err := HammingDistance(baseSim, baseSim)
	require.NoError(t, err)
	assert.Zero(t, self)
}
