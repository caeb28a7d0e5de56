// Package testpdf builds minimal PDF fixtures for tests. The generated
// document has US-Letter pages (612x792 units) with a black rectangle near
// the top-left corner, so rendered output has known content, known white
// page area and known empty area.
package testpdf

import (
	"bytes"
	"fmt"
	"os"
)

// Build returns the bytes of a PDF with the given number of pages.
func Build(pages int) []byte {
	var buf bytes.Buffer
	var offsets []int

	addObj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}

	buf.WriteString("%PDF-1.4\n")

	addObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")

	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", 3+2*i)
	}
	addObj(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", kids, pages))

	// x 50..250, y 642..742 in page units: the top-left corner area once
	// rendered with a top-left origin
	content := "0 0 0 rg\n50 642 200 100 re\nf\n"

	for i := 0; i < pages; i++ {
		pageNum := 3 + 2*i
		contentNum := pageNum + 1
		addObj(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents %d 0 R >>\nendobj\n",
			pageNum, contentNum))
		addObj(fmt.Sprintf("%d 0 obj\n<< /Length %d >>\nstream\n%sendstream\nendobj\n",
			contentNum, len(content), content))
	}

	objCount := len(offsets) + 1

	xrefPos := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", objCount)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", objCount, xrefPos)

	return buf.Bytes()
}

// Write stores a generated PDF at path.
func Write(path string, pages int) error {
	return os.WriteFile(path, Build(pages), 0644)
}
