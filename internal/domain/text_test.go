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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotLabel(t *testing.T) {
	cases := map[int]string{0: "CTRL-1", 8: "CTRL-9", 9: "CTRL-0", 10: "ALT-1", 19: "ALT-0", 20: "", -1: ""}
	for idx, want := range cases {
		assert.Equal(t, want, SlotLabel(idx), "slot %d", idx)
	}
	assert.True(t, IsCtrlSlot(9))
	assert.False(t, IsCtrlSlot(10))
}

func TestDisplayText(t *testing.T) {
	assert.Equal(t, "/ma \"Cure\" <t>", DisplayText("/ma \"Cure\" <t>"))
	// 0x83 0x50 is katakana KE in Shift-JIS
	assert.Equal(t, "ケ", DisplayText("\u0083\u0050"))
	// already decoded text is left alone
	assert.Equal(t, "ケアル", DisplayText("ケアル"))
}
