/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ximacro/internal/domain"
)

func collection(pages ...int) []domain.MacroItem {
	var out []domain.MacroItem
	for _, p := range pages {
		it := domain.MacroItem{FileName: fmt.Sprintf(`USER\0001-SE\mcr%d.dat`, p), FileSize: 7624}
		for i := 0; i < domain.MacrosPerItem; i++ {
			m := domain.Macro{Offset: fmt.Sprintf("0x%X", i), Name: fmt.Sprintf("m%d", i)}
			for j := 0; j < domain.LinesPerMacro; j++ {
				m.Lines = append(m.Lines, domain.MacroLine{Offset: fmt.Sprintf("0x%X", j), Data: "/wait 1"})
			}
			it.Macros = append(it.Macros, m)
		}
		out = append(out, it)
	}
	return out
}

func TestSnapshotsRoundTripAndPrune(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	items := collection(0, 1, 12)

	first, err := s.SaveSnapshot(ctx, "0001-SE", "save", items)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Pages)

	got, loaded, err := s.LoadSnapshot(ctx, first.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, items, loaded)

	for i := 0; i < 5; i++ {
		_, err := s.SaveSnapshot(ctx, "0001-SE", "save", items[:1])
		require.NoError(t, err)
	}
	_, err = s.SaveSnapshot(ctx, "0002-SE", "save", items)
	require.NoError(t, err)

	list, err := s.ListSnapshots(ctx, "0001-SE", 10)
	require.NoError(t, err)
	require.Len(t, list, 6)
	latest, err := s.LatestSnapshot(ctx, "0001-SE")
	require.NoError(t, err)
	assert.Equal(t, list[0].ID, latest.ID)
	assert.Equal(t, 1, latest.Pages)

	n, err := s.PruneSnapshots(ctx, "0001-SE", 3)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	list, err = s.ListSnapshots(ctx, "0001-SE", 10)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	other, err := s.ListSnapshots(ctx, "0002-SE", 10)
	require.NoError(t, err)
	assert.Len(t, other, 1)

	_, _, err = s.LoadSnapshot(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.LatestSnapshot(ctx, "0009-SE")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLZ4RoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte(`{"name":"Cure","data":"/ma \"Cure\" <t>"}`), 200)
	c, err := CompressLZ4(data)
	require.NoError(t, err)
	assert.Less(t, len(c), len(data))
	d, err := DecompressLZ4(c)
	require.NoError(t, err)
	assert.Equal(t, data, d)
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "out", "all_macros.json")
	require.NoError(t, WriteFileAtomic(p, []byte("one")))
	require.NoError(t, WriteFileAtomic(p, []byte("two")))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))
	entries, err := os.ReadDir(filepath.Dir(p))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}
