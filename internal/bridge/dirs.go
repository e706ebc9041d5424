/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package bridge

import (
	"context"
	"os"
	"sort"

	"ximacro/internal/domain"
)

// ListDirectories returns the names of the subdirectories of path, sorted.
// It runs natively, no executable is involved.
func (b *Bridge) ListDirectories(ctx context.Context, path string) ([]string, error) {
	const op = "list-directories"
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Op: op, Kind: domain.ErrInvalidPath, Err: err}
	}
	if !st.IsDir() {
		return nil, &Error{Op: op, Kind: domain.ErrInvalidPath, Err: &os.PathError{Op: "stat", Path: path, Err: errNotDir}}
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, &Error{Op: op, Kind: domain.ErrReadFailure, Err: err}
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
