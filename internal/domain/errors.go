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

import "errors"

// Error kinds shared by the bridge, storage and workspace layers.
// Callers match them with errors.Is; concrete errors wrap one of these.
var (
	// ErrNotConfigured is returned when no game install directory is set.
	ErrNotConfigured = errors.New("install directory not configured")

	// ErrInvalidPath is returned when a path does not exist or is not a directory.
	ErrInvalidPath = errors.New("invalid directory path")

	// ErrReadFailure is returned when a directory listing fails.
	ErrReadFailure = errors.New("error reading directory")

	// ErrTimeout is returned when an executable exceeds its time limit.
	ErrTimeout = errors.New("operation timed out")

	// ErrProcessFailure is returned when an executable exits non-zero or cannot start.
	ErrProcessFailure = errors.New("executable failed")

	// ErrEmptyOutput is returned when an executable produced no output where some was required.
	ErrEmptyOutput = errors.New("no output from the executable")

	// ErrParseFailure is returned when executable output or an import file is not valid macro JSON.
	ErrParseFailure = errors.New("failed to parse output")

	// ErrValidation is returned for rejected user input (duplicates, empty or oversized fields).
	ErrValidation = errors.New("validation failed")
)
