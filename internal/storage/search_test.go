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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ximacro/internal/domain"
)

func searchFixture() []domain.MacroItem {
	items := collection(0, 12)
	items[0].Macros[0].Name = "Cure"
	items[0].Macros[0].Lines[0].Data = `/ma "Cure IV" <stpc>`
	items[1].Macros[4].Name = "Warp"
	items[1].Macros[4].Lines[0].Data = `/item "Warp Ring" <me>`
	return items
}

func TestSearchMacros(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	require.NoError(t, s.IndexMacros(ctx, "0001-SE", searchFixture()))

	hits, err := s.SearchMacros(ctx, MacroQuery{Folder: "0001-SE", Text: "cure"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "mcr.dat", hits[0].File)
	assert.Equal(t, 0, hits[0].Page)
	assert.Equal(t, 0, hits[0].Slot)
	assert.Equal(t, "Cure", hits[0].Name)

	hits, err = s.SearchMacros(ctx, MacroQuery{Folder: "0001-SE", Text: `/item "warp`})
	require.NoError(t, err, "macro syntax is quoted, not parsed as query operators")
	require.Len(t, hits, 1)
	assert.Equal(t, 12, hits[0].Page)
	assert.Equal(t, 4, hits[0].Slot)
	assert.Contains(t, hits[0].Snippet, "[")

	hits, err = s.SearchMacros(ctx, MacroQuery{Folder: "0002-SE", Text: "cure"})
	require.NoError(t, err)
	assert.Empty(t, hits, "other folders are not searched")

	hits, err = s.SearchMacros(ctx, MacroQuery{Folder: "0001-SE", Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndexMacrosReplacesFolder(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	items := searchFixture()
	require.NoError(t, s.IndexMacros(ctx, "0001-SE", items))

	items[0].Macros[0].Name = "Raise"
	items[0].Macros[0].Lines[0].Data = `/ma "Raise" <t>`
	require.NoError(t, s.IndexMacros(ctx, "0001-SE", items))

	hits, err := s.SearchMacros(ctx, MacroQuery{Folder: "0001-SE", Text: "cure"})
	require.NoError(t, err)
	assert.Empty(t, hits)
	hits, err = s.SearchMacros(ctx, MacroQuery{Folder: "0001-SE", Text: "raise"})
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	require.NoError(t, s.Clear(ctx))
	hits, err = s.SearchMacros(ctx, MacroQuery{Folder: "0001-SE", Text: "raise"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMatchExpr(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"cure", `"cure"*`},
		{`/ma "Cure IV"`, `"/ma"* "Cure"* "IV"*`},
		{`a"b`, `"a""b"*`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchExpr(tt.in), tt.in)
	}
}

func BenchmarkSearchMacros(b *testing.B) {
	ctx := context.Background()
	s := openTemp(b)
	if err := s.IndexMacros(ctx, "0001-SE", collection(0, 1, 2, 3, 4, 5, 6, 7, 8, 9)); err != nil {
		b.Fatalf("IndexMacros: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.SearchMacros(ctx, MacroQuery{Folder: "0001-SE", Text: "wait"}); err != nil {
			b.Fatalf("SearchMacros: %v", err)
		}
	}
}

func BenchmarkIndexMacros(b *testing.B) {
	ctx := context.Background()
	s := openTemp(b)
	items := collection(0, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := s.IndexMacros(ctx, "0001-SE", items); err != nil {
			b.Fatalf("IndexMacros: %v", err)
		}
	}
}
