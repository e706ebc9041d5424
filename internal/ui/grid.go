//go:build fyne && cgo

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
	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"ximacro/internal/domain"
)

// slotGrid shows the 20 macro slots of a page: Ctrl slots on the first row, Alt slots
// on the second.
type slotGrid struct {
	buttons  [domain.MacrosPerItem]*widget.Button
	selected int
	onTap    func(int)
	box      *fyne.Container
}

func newSlotGrid(onTap func(int)) *slotGrid {
	g := &slotGrid{selected: -1, onTap: onTap}
	objs := make([]fyne.CanvasObject, 0, domain.MacrosPerItem)
	for i := range g.buttons {
		i := i
		b := widget.NewButton(slotCaption(i, domain.Macro{}), func() {
			if g.onTap != nil {
				g.onTap(i)
			}
		})
		b.Alignment = widget.ButtonAlignLeading
		g.buttons[i] = b
		objs = append(objs, b)
	}
	g.box = container.NewGridWithColumns(domain.CtrlSlots, objs...)
	return g
}

// update shows item's macros and highlights slot sel (-1 for none). A nil item disables
// every button.
func (g *slotGrid) update(item *domain.MacroItem, sel int) {
	g.selected = sel
	for i, b := range g.buttons {
		var m domain.Macro
		if item != nil && i < len(item.Macros) {
			m = item.Macros[i]
		}
		b.SetText(slotCaption(i, m))
		if i == sel {
			b.Importance = widget.HighImportance
		} else {
			b.Importance = widget.MediumImportance
		}
		if item == nil {
			b.Disable()
		} else {
			b.Enable()
		}
		b.Refresh()
	}
}

func (g *slotGrid) object() fyne.CanvasObject { return g.box }
