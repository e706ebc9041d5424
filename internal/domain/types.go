/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the macro record model exchanged with the macro executables.
// Field names mirror the JSON interchange format produced by the export executable,
// so a collection can be decoded, edited and written back without any mapping layer.

const (
	// LinesPerMacro is the fixed number of text lines in one macro.
	LinesPerMacro = 6
	// MacrosPerItem is the fixed number of macro slots in one macro file (10 Ctrl + 10 Alt).
	MacrosPerItem = 20
	// CtrlSlots is the number of Ctrl-bound slots at the start of an item.
	CtrlSlots = 10
	// NameMaxLen is the maximum macro name length in characters.
	NameMaxLen = 8
	// LineMaxLen is the maximum macro line length in characters.
	LineMaxLen = 36
)

// MacroLine is one line of text within a macro.
// Offset is the hex file offset reported by the executable (e.g. "0x001C") and is opaque here.
type MacroLine struct {
	Offset string `json:"offset"`
	Data   string `json:"data"`
}

// Macro is one assignable macro slot.
type Macro struct {
	Offset string      `json:"offset"`
	Lines  []MacroLine `json:"lines"`
	Name   string      `json:"name"`
}

// MacroItem is the parsed content of one on-disk macro file (one page).
// FileName embeds the page number, e.g. `...\USER\0001-SE\mcr12.dat`.
type MacroItem struct {
	FileName string  `json:"fileName"`
	FileSize int64   `json:"fileSize"`
	Macros   []Macro `json:"macros"`
}

// Character is a user-defined alias for a game USER subfolder.
type Character struct {
	Name   string `json:"name"`
	Folder string `json:"folder"`
}

// Clone returns a deep copy of the macro.
func (m Macro) Clone() Macro {
	out := m
	if m.Lines != nil {
		out.Lines = append([]MacroLine(nil), m.Lines...)
	}
	return out
}

// Clone returns a deep copy of the item.
func (it MacroItem) Clone() MacroItem {
	out := it
	if it.Macros != nil {
		out.Macros = make([]Macro, len(it.Macros))
		for i, m := range it.Macros {
			out.Macros[i] = m.Clone()
		}
	}
	return out
}

// CloneItems deep-copies a collection.
func CloneItems(items []MacroItem) []MacroItem {
	if items == nil {
		return nil
	}
	out := make([]MacroItem, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

// IsCtrlSlot reports whether a slot index is bound to Ctrl (0-9) rather than Alt (10-19).
func IsCtrlSlot(index int) bool { return index >= 0 && index < CtrlSlots }
