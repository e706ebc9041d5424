/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"

	"ximacro/internal/book"
	"ximacro/internal/domain"
	"ximacro/internal/version"
)

// PDFOptions controls the book sheet layout. Units are points.
type PDFOptions struct {
	// Title defaults to the book name.
	Title string
	// Character is printed in the header when set.
	Character string
	// Compact prints only macro names, without line text.
	Compact bool
}

// BookSheetPDF writes one landscape A4 page per macro page of b: two rows of Ctrl cells
// above two rows of Alt cells, each with the key binding, macro name and lines.
func BookSheetPDF(w io.Writer, b book.Book, bookName string, opt PDFOptions) error {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt", Size: gofpdf.SizeType{Wd: 842, Ht: 595}})
	title := opt.Title
	if title == "" {
		title = bookName
	}
	pdf.SetTitle(title, true)
	pdf.SetCreator("ximacro "+version.String(), true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	const (
		margin  = 24.0
		headerH = 36.0
		cols    = 5
		rows    = domain.MacrosPerItem / cols
	)
	pageW, pageH := 842.0, 595.0
	cellW := (pageW - 2*margin) / cols
	cellH := (pageH - 2*margin - headerH) / rows

	for _, it := range b.Items {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 14)
		head := fmt.Sprintf("%s  -  page %d", title, book.ExtractPageNumber(it.FileName)%book.PagesPerBook+1)
		if opt.Character != "" {
			head = opt.Character + "  -  " + head
		}
		pdf.Text(margin, margin+14, tr(head))

		pdf.SetDrawColor(0, 0, 0)
		pdf.SetLineWidth(0.5)
		for i, m := range it.Macros {
			if i >= domain.MacrosPerItem {
				break
			}
			x := margin + float64(i%cols)*cellW
			y := margin + headerH + float64(i/cols)*cellH
			if !domain.IsCtrlSlot(i) {
				pdf.SetFillColor(235, 240, 250)
			} else {
				pdf.SetFillColor(250, 245, 235)
			}
			pdf.Rect(x, y, cellW, cellH, "FD")

			pdf.SetFont("Helvetica", "B", 8)
			pdf.Text(x+4, y+11, domain.SlotLabel(i))
			pdf.SetFont("Helvetica", "", 10)
			pdf.Text(x+4, y+25, tr(domain.DisplayText(m.Name)))
			if opt.Compact {
				continue
			}
			pdf.SetFont("Courier", "", 6.5)
			ly := y + 38
			for _, line := range m.Lines {
				if line.Data != "" {
					pdf.Text(x+4, ly, tr(domain.DisplayText(line.Data)))
				}
				ly += 9
			}
		}
	}
	if len(b.Items) == 0 {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "", 12)
		pdf.Text(margin, margin+14, tr(title+" is empty"))
	}
	return pdf.Output(w)
}

// BookSheetPDFFile writes the sheet to outPath, creating its directory.
func BookSheetPDFFile(outPath string, b book.Book, bookName string, opt PDFOptions) (err error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := BookSheetPDF(f, b, bookName, opt); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
