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
	"github.com/shirou/gopsutil/v3/process"
)

// killTree kills pid and all of its descendants, children first. Errors are ignored:
// processes may exit on their own while we walk the tree.
func killTree(pid int) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	killProcess(p)
}

func killProcess(p *process.Process) {
	if children, err := p.Children(); err == nil {
		for _, c := range children {
			killProcess(c)
		}
	}
	_ = p.Kill()
}
