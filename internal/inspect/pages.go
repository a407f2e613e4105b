package inspect

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

// CountPages counts the pages of a document: PDF pages, DOCX body
// paragraphs, PPTX slides, XLSX sheets or plain text lines.
func CountPages(path, mimeType string) (int, error) {
	switch {
	case strings.Contains(mimeType, "pdf"):
		return countPDFPages(path)
	case strings.Contains(mimeType, "wordprocessingml.document"):
		return countDocxParagraphs(path)
	case strings.Contains(mimeType, "presentationml.presentation"):
		return countPptxSlides(path)
	case strings.Contains(mimeType, "spreadsheetml.sheet"):
		return countXlsxSheets(path)
	case strings.HasPrefix(mimeType, "text/plain"):
		return countTextLines(path)
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
}

func countPDFPages(path string) (n int, err error) {
	// The pdf reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("read pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		if f != nil {
			f.Close()
		}
		return 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()
	return r.NumPage(), nil
}

// countDocxParagraphs counts w:p elements that are direct children of w:body,
// which excludes paragraphs nested in tables and text boxes.
func countDocxParagraphs(path string) (int, error) {
	paras, err := docxParagraphs(path)
	return len(paras), err
}

// docxParagraphs returns the text of each body-level w:p, in order.
func docxParagraphs(path string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx: %w", err)
	}
	defer zr.Close()

	rc, err := openZipEntry(&zr.Reader, "word/document.xml")
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	var (
		stack []string
		paras []string
		cur   strings.Builder
		depth = -1 // stack depth of the open body paragraph
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse docx: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "p" && len(stack) > 0 && stack[len(stack)-1] == "body" {
				depth = len(stack)
				cur.Reset()
			}
			if depth >= 0 && t.Name.Local == "tab" {
				cur.WriteByte('\t')
			}
			stack = append(stack, t.Name.Local)
		case xml.CharData:
			if depth >= 0 && len(stack) > 0 && stack[len(stack)-1] == "t" {
				cur.Write(t)
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			if depth >= 0 && len(stack) == depth {
				paras = append(paras, cur.String())
				depth = -1
			}
		}
	}
	return paras, nil
}

// countPptxSlides counts the slide references in the presentation part.
func countPptxSlides(path string) (int, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("open pptx: %w", err)
	}
	defer zr.Close()

	rc, err := openZipEntry(&zr.Reader, "ppt/presentation.xml")
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	dec := xml.NewDecoder(rc)
	count := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("parse pptx: %w", err)
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "sldId" {
			count++
		}
	}
	return count, nil
}

func countXlsxSheets(path string) (int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return 0, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()
	return len(f.GetSheetList()), nil
}

// countTextLines counts lines the way a line iterator does: a final line
// without a trailing newline still counts.
func countTextLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	var (
		last  byte
		total int
	)
	buf := make([]byte, chunkSize)
	for {
		n, err := f.Read(buf)
		for _, b := range buf[:n] {
			if b == '\n' {
				count++
			}
		}
		if n > 0 {
			last = buf[n-1]
			total += n
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if total > 0 && last != '\n' {
		count++
	}
	return count, nil
}

func openZipEntry(zr *zip.Reader, name string) (io.ReadCloser, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("%s not found in archive", name)
}
