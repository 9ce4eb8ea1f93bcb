package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// textRun matches <w:t> nodes with or without attributes, so runs survive
// regardless of paragraph formatting.
var textRun = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// extractDocx pulls the text runs out of word/document.xml inside the OOXML
// zip container.
func extractDocx(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract docx: not a zip: %w", err)
	}
	var docXML []byte
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("extract docx: %w", err)
		}
		docXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("extract docx: %w", err)
		}
		break
	}
	if docXML == nil {
		return "", fmt.Errorf("extract docx: word/document.xml not found")
	}
	runs := textRun.FindAllSubmatch(docXML, -1)
	var b strings.Builder
	for _, run := range runs {
		piece := strings.TrimSpace(string(run[1]))
		if piece == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(piece)
	}
	return b.String(), nil
}
