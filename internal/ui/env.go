/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"ximacro/internal/bridge"
	"ximacro/internal/config"
	"ximacro/internal/workspace"
)

// Progress is the event source shown in the status bar.
type Progress interface {
	Subscribe(fn func(bridge.Progress)) (unsubscribe func())
}

// Env is what the desktop UI runs against.
type Env struct {
	Workspace  *workspace.Workspace
	Progress   Progress
	Config     config.AppConfig
	ConfigPath string
	// CrashDir receives crash reports and recovery dumps.
	CrashDir string
}
