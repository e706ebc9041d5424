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

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	gojsonschema "github.com/xeipuuv/gojsonschema"
)

//go:embed schema/*.json
var schemaFS embed.FS

var (
	schemaOnce   sync.Once
	macrosSchema *gojsonschema.Schema
	booksSchema  *gojsonschema.Schema
	schemaErr    error
)

func loadSchemas() error {
	schemaOnce.Do(func() {
		load := func(name string) (*gojsonschema.Schema, error) {
			b, err := schemaFS.ReadFile("schema/" + name)
			if err != nil {
				return nil, err
			}
			return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
		}
		if macrosSchema, schemaErr = load("macros.schema.json"); schemaErr != nil {
			return
		}
		booksSchema, schemaErr = load("books.schema.json")
	})
	return schemaErr
}

func validateAgainst(s *gojsonschema.Schema, data []byte) error {
	res, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for i, e := range res.Errors() {
			if i == 3 {
				msgs = append(msgs, fmt.Sprintf("and %d more", len(res.Errors())-3))
				break
			}
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrParseFailure, strings.Join(msgs, "; "))
	}
	return nil
}

// ParseMacroItems validates data against the macro collection schema and decodes it.
func ParseMacroItems(data []byte) ([]MacroItem, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyOutput
	}
	if err := loadSchemas(); err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if err := validateAgainst(macrosSchema, data); err != nil {
		return nil, err
	}
	var items []MacroItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	return items, nil
}

// ParseBookNames decodes the output of the books executable.
// Empty input yields no names.
func ParseBookNames(data []byte) ([]string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if err := loadSchemas(); err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if err := validateAgainst(booksSchema, data); err != nil {
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailure, err)
	}
	return names, nil
}

// EncodeMacroItems returns the compact JSON form of a collection.
// A nil collection encodes as an empty array.
func EncodeMacroItems(items []MacroItem) ([]byte, error) {
	if items == nil {
		items = []MacroItem{}
	}
	return json.Marshal(items)
}

// EncodeMacroIndent returns indented JSON for a single macro, as placed on the system clipboard.
func EncodeMacroIndent(m Macro) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Validate checks the editable constraints of a macro.
func (m Macro) Validate() error { return ValidateMacro(m) }

// ValidateMacro reports the first violated field constraint, wrapped in ErrValidation.
func ValidateMacro(m Macro) error {
	if n := utf8.RuneCountInString(m.Name); n > NameMaxLen {
		return fmt.Errorf("%w: name %q is %d characters, max %d", ErrValidation, m.Name, n, NameMaxLen)
	}
	if len(m.Lines) != LinesPerMacro {
		return fmt.Errorf("%w: macro has %d lines, want %d", ErrValidation, len(m.Lines), LinesPerMacro)
	}
	for i, l := range m.Lines {
		if n := utf8.RuneCountInString(l.Data); n > LineMaxLen {
			return fmt.Errorf("%w: line %d is %d characters, max %d", ErrValidation, i+1, n, LineMaxLen)
		}
	}
	return nil
}

// ValidateItems checks every macro of a collection, for imports.
func ValidateItems(items []MacroItem) error {
	for _, it := range items {
		if len(it.Macros) != MacrosPerItem {
			return fmt.Errorf("%w: %s has %d macros, want %d", ErrValidation, it.FileName, len(it.Macros), MacrosPerItem)
		}
		for i, m := range it.Macros {
			if err := ValidateMacro(m); err != nil {
				return fmt.Errorf("%s %s: %w", it.FileName, SlotLabel(i), err)
			}
		}
	}
	return nil
}

// Validate requires a non-blank name and folder.
func (c Character) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: character name is required", ErrValidation)
	}
	if strings.TrimSpace(c.Folder) == "" {
		return fmt.Errorf("%w: folder is required", ErrValidation)
	}
	return nil
}
