package extractors

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// DOCXMethod names which extraction method produced the
// winning text.
type DOCXMethod string

const (
	DOCXMethodLibrary DOCXMethod = "library"
	DOCXMethodArchive DOCXMethod = "archive_xml"
	DOCXMethodRawScan DOCXMethod = "raw_scan"
)

// DOCXResult is the outcome of ExtractDOCX.
type DOCXResult struct {
	Text   string
	Method DOCXMethod
}

// ExtractDOCX tries, in order: the nguyenthenguyen/docx library's raw
// text extract, then manually opening the zip archive and stripping
// XML text runs from word/document.xml, then a raw UTF-8 scan. The
// first method to yield non-empty text wins.
func ExtractDOCX(data []byte) (DOCXResult, error) {
	if text, ok := extractDOCXLibrary(data); ok {
		return DOCXResult{Text: text, Method: DOCXMethodLibrary}, nil
	}

	if text, ok := extractDOCXArchive(data); ok {
		return DOCXResult{Text: text, Method: DOCXMethodArchive}, nil
	}

	return DOCXResult{Text: extractDOCXRawScan(data), Method: DOCXMethodRawScan}, nil
}

func extractDOCXLibrary(data []byte) (string, bool) {
	tmp, err := os.CreateTemp("", "contactminer-*.docx")
	if err != nil {
		return "", false
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", false
	}
	tmp.Close()

	doc, err := docx.ReadDocxFile(tmp.Name())
	if err != nil {
		return "", false
	}
	defer doc.Close()

	text := doc.Editable().GetContent()
	return text, strings.TrimSpace(text) != ""
}

// wordRun mirrors the small slice of WordprocessingML needed to pull
// plain text runs out of word/document.xml.
type wordRun struct {
	XMLName xml.Name `xml:"t"`
	Text    string   `xml:",chardata"`
}

func extractDOCXArchive(data []byte) (string, bool) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", false
	}

	var docXML *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			docXML = f
			break
		}
	}
	if docXML == nil {
		return "", false
	}

	rc, err := docXML.Open()
	if err != nil {
		return "", false
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return "", false
	}

	var sb strings.Builder
	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "t" {
			var run wordRun
			if err := dec.DecodeElement(&run, &se); err == nil {
				sb.WriteString(run.Text)
				sb.WriteString(" ")
			}
		}
	}

	text := sb.String()
	return text, strings.TrimSpace(text) != ""
}

// extractDOCXRawScan is a mammoth-style last resort: scan the raw
// bytes for printable UTF-8 runs. It never fails outright.
func extractDOCXRawScan(data []byte) string {
	var sb strings.Builder
	var run strings.Builder
	flush := func() {
		if run.Len() >= 4 {
			sb.WriteString(run.String())
			sb.WriteString(" ")
		}
		run.Reset()
	}
	for _, b := range data {
		if b >= 0x20 && b < 0x7f {
			run.WriteByte(b)
		} else {
			flush()
		}
	}
	flush()
	return strings.TrimSpace(sb.String())
}
