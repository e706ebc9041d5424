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
	"fmt"

	"golang.org/x/text/encoding/japanese"
)

// SlotLabel returns the key binding shown for a slot: CTRL-1..CTRL-0 then ALT-1..ALT-0.
func SlotLabel(index int) string {
	if index < 0 || index >= MacrosPerItem {
		return ""
	}
	mod := "CTRL"
	if !IsCtrlSlot(index) {
		mod = "ALT"
	}
	return fmt.Sprintf("%s-%d", mod, (index%CtrlSlots+1)%10)
}

// DisplayText renders text for display. The export executable passes raw file bytes
// through as code points U+0000..U+00FF; when every rune fits in a byte the string
// is re-read as Shift-JIS. Anything else is returned unchanged.
func DisplayText(s string) string {
	raw := make([]byte, 0, len(s))
	ascii := true
	for _, r := range s {
		if r > 0xFF {
			return s
		}
		if r > 0x7F {
			ascii = false
		}
		raw = append(raw, byte(r))
	}
	if ascii {
		return s
	}
	out, err := japanese.ShiftJIS.NewDecoder().Bytes(raw)
	if err != nil {
		return s
	}
	return string(out)
}
