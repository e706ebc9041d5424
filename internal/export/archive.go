/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package export writes a macro collection to files outside the game folder and reads it
// back: plain or LZ4-compressed JSON archives for backup and transfer, and printable PDF
// sheets of a book.
package export

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"ximacro/internal/domain"
	applog "ximacro/internal/log"
	"ximacro/internal/storage"
)

// DefaultFileName is suggested when exporting all macros.
const DefaultFileName = "all_macros.json"

// Format of an archive file.
type Format int

const (
	FormatJSON Format = iota
	FormatJSONLZ4
)

// lz4 frame magic number, little endian
var lz4Magic = []byte{0x04, 0x22, 0x4D, 0x18}

// FormatFor picks the archive format from the file name.
func FormatFor(path string) Format {
	if strings.HasSuffix(strings.ToLower(path), ".lz4") {
		return FormatJSONLZ4
	}
	return FormatJSON
}

// WriteArchive writes items to path atomically, compressed when path ends in .lz4.
func WriteArchive(path string, items []domain.MacroItem) error {
	l := applog.WithOperation(applog.WithComponent("export"), "write").With(slog.String("path", path))
	data, err := domain.EncodeMacroItems(items)
	if err != nil {
		return err
	}
	if FormatFor(path) == FormatJSONLZ4 {
		if data, err = storage.CompressLZ4(data); err != nil {
			return fmt.Errorf("compress: %w", err)
		}
	}
	if err := storage.WriteFileAtomic(path, data); err != nil {
		l.Error("export failed", slog.Any("err", err))
		return err
	}
	l.Info("exported", slog.Int("pages", len(items)), slog.Int("bytes", len(data)))
	return nil
}

// ReadArchive reads and validates an archive written by WriteArchive. Compression is
// detected from the content, not the name. Every macro must satisfy the edit limits.
func ReadArchive(path string) ([]domain.MacroItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(data, lz4Magic) {
		if data, err = storage.DecompressLZ4(data); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrParseFailure, err)
		}
	}
	items, err := domain.ParseMacroItems(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := domain.ValidateItems(items); err != nil {
		return nil, err
	}
	return items, nil
}

// Retarget rewrites the folder part of every file name so an archive taken from one
// character folder can be written into another. Pages are matched by base name.
func Retarget(items []domain.MacroItem, folderPath string) []domain.MacroItem {
	out := domain.CloneItems(items)
	sep := "/"
	if strings.Contains(folderPath, `\`) {
		sep = `\`
	}
	for i := range out {
		name := out[i].FileName
		if j := strings.LastIndexAny(name, `\/`); j >= 0 {
			name = name[j+1:]
		}
		out[i].FileName = strings.TrimRight(folderPath, `\/`) + sep + name
	}
	return out
}
