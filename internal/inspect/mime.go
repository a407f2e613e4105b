package inspect

import (
	"io"
	"mime"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// OctetStream is the MIME type used when nothing better is known.
const OctetStream = "application/octet-stream"

const sniffLen = 3072

var extensionTypes = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"svg":  "image/svg+xml",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ppt":  "application/vnd.ms-powerpoint",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"odt":  "application/vnd.oasis.opendocument.text",
	"rtf":  "application/rtf",
	"txt":  "text/plain",
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
	"mkv":  "video/x-matroska",
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
	"m4a":  "audio/mp4",
}

// DetectMIME sniffs the content signature in header. When sniffing gives
// nothing more specific than a generic container type, the type is taken
// from the filename extension. The boolean reports whether the result came
// from sniffing.
func DetectMIME(header []byte, filename string) (string, bool) {
	if len(header) > 0 {
		sniffed := stripParams(mimetype.Detect(header).String())
		if !isGeneric(sniffed) {
			return sniffed, true
		}
	}
	return MIMEByExtension(Extension(filename)), false
}

// DetectMIMEFile reads the head of the file at path and calls DetectMIME.
// The returned type is always usable; err reports why sniffing was skipped.
func DetectMIMEFile(path, filename string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return MIMEByExtension(Extension(filename)), false, err
	}
	defer f.Close()

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return MIMEByExtension(Extension(filename)), false, err
	}
	mt, sniffed := DetectMIME(header[:n], filename)
	return mt, sniffed, nil
}

// MIMEByExtension maps an extension (without dot) to a MIME type.
func MIMEByExtension(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" {
		return OctetStream
	}
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension("." + ext); t != "" {
		return stripParams(t)
	}
	return OctetStream
}

func isGeneric(t string) bool {
	switch t {
	case "", OctetStream, "application/zip", "application/x-ole-storage":
		return true
	}
	return false
}

func stripParams(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(strings.ToLower(t))
}
