/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package book groups macro pages into books of ten by the page number in their file name.
package book

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"ximacro/internal/domain"
)

// PagesPerBook is the number of pages grouped into one book.
const PagesPerBook = 10

// Book is a derived grouping of pages sharing page/PagesPerBook. Never persisted.
type Book struct {
	Index int
	Items []domain.MacroItem
}

// Number is the 1-based book number shown to users.
func (b Book) Number() int { return b.Index + 1 }

// ExtractPageNumber returns the first run of decimal digits in the final path segment
// of fileName. Both `\` and `/` separate segments. It returns 0 when there are no digits
// or the number does not fit an int.
func ExtractPageNumber(fileName string) int {
	seg := fileName
	if i := strings.LastIndexAny(seg, `\/`); i >= 0 {
		seg = seg[i+1:]
	}
	start := strings.IndexFunc(seg, isDigit)
	if start < 0 {
		return 0
	}
	end := start
	for end < len(seg) && isDigit(rune(seg[end])) {
		end++
	}
	n, err := strconv.Atoi(seg[start:end])
	if err != nil {
		return 0
	}
	return n
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

// IndexOf returns the book index of a page file.
func IndexOf(fileName string) int { return ExtractPageNumber(fileName) / PagesPerBook }

// Bucket groups items by book index. Books are ordered by index, only non-empty books
// are returned, and input order is preserved within a book.
func Bucket(items []domain.MacroItem) []Book {
	byIndex := map[int]*Book{}
	for _, it := range items {
		idx := IndexOf(it.FileName)
		b, ok := byIndex[idx]
		if !ok {
			b = &Book{Index: idx}
			byIndex[idx] = b
		}
		b.Items = append(b.Items, it)
	}
	out := make([]Book, 0, len(byIndex))
	for _, b := range byIndex {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Name returns the display name of book index from the names read from the book files,
// falling back to "Book N" when the name is missing or blank.
func Name(index int, names []string) string {
	if index >= 0 && index < len(names) {
		if n := strings.TrimSpace(names[index]); n != "" {
			return n
		}
	}
	return fmt.Sprintf("Book %d", index+1)
}
