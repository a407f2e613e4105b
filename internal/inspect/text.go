package inspect

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// MaxTextBytes caps the text ExtractText returns.
const MaxTextBytes = 1 << 20

// ExtractText returns the plain text of a PDF, DOCX or text/plain file.
// DOCX paragraphs and text lines are joined with a newline; text lines are
// trimmed. Output longer than MaxTextBytes is cut at a rune boundary.
func ExtractText(path, mimeType string) (string, error) {
	var (
		text string
		err  error
	)
	switch {
	case strings.Contains(mimeType, "pdf"):
		text, err = pdfText(path)
	case strings.Contains(mimeType, "wordprocessingml.document"):
		var paras []string
		paras, err = docxParagraphs(path)
		text = strings.Join(paras, "\n")
	case strings.HasPrefix(mimeType, "text/plain"):
		text, err = plainText(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}
	if err != nil {
		return "", err
	}
	return truncateText(text, MaxTextBytes), nil
}

func pdfText(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("read pdf: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		if f != nil {
			f.Close()
		}
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	rd, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	b, err := io.ReadAll(io.LimitReader(rd, MaxTextBytes+utf8.UTFMax))
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	return string(b), nil
}

func plainText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var out strings.Builder
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, chunkSize), MaxTextBytes)
	for sc.Scan() {
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
		out.WriteString(strings.TrimSpace(sc.Text()))
		if out.Len() > MaxTextBytes {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return out.String(), nil
}

func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}
