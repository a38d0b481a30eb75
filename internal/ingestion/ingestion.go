// Package ingestion extracts plain text from uploaded résumés.
package ingestion

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

// Supported MIME types.
const (
	MIMEText = "text/plain"
	MIMEPDF  = "application/pdf"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// MaxSize is the largest accepted upload.
const MaxSize = 10 << 20

var (
	// ErrUnsupported is returned for file types other than PDF, DOCX and text.
	ErrUnsupported = errors.New("unsupported file type")
	// ErrEmpty is returned when no text could be extracted.
	ErrEmpty = errors.New("no text found in document")
	// ErrTooLarge is returned for uploads above MaxSize.
	ErrTooLarge = errors.New("document is too large")
)

var extensions = map[string]string{
	".txt":  MIMEText,
	".md":   MIMEText,
	".pdf":  MIMEPDF,
	".docx": MIMEDOCX,
}

// DetectType resolves the MIME type from the declared content type, the file
// name and finally the content itself.
func DetectType(filename, declared string, data []byte) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(declared, ';'); i != -1 {
		declared = strings.TrimSpace(declared[:i])
	}
	switch declared {
	case MIMEText, MIMEPDF, MIMEDOCX:
		return declared
	}

	if mime, ok := extensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return mime
	}

	sniffed := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(sniffed, MIMEPDF):
		return MIMEPDF
	case strings.HasPrefix(sniffed, MIMEText):
		return MIMEText
	}
	return sniffed
}

// ExtractText returns the text of a document of the given MIME type.
func ExtractText(mime string, data []byte) (string, error) {
	if len(data) > MaxSize {
		return "", ErrTooLarge
	}

	var (
		text string
		err  error
	)

	switch mime {
	case MIMEText:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: text is not valid UTF-8", ErrUnsupported)
		}
		text = string(data)
	case MIMEPDF:
		text, err = extractPDFText(bytes.NewReader(data), int64(len(data)))
	case MIMEDOCX:
		text, err = extractDocxText(bytes.NewReader(data), int64(len(data)))
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, mime)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// Read extracts the text of a named document read from r.
func Read(filename, declared string, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return ExtractText(DetectType(filename, declared, data), data)
}

// extractPDFText recovers from panics of the pdf reader on malformed files.
func extractPDFText(reader io.ReaderAt, size int64) (_ string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to read pdf: %v", r)
		}
	}()

	pdfReader, err := pdf.NewReader(reader, size)
	if err != nil {
		return "", fmt.Errorf("failed to read pdf: %w", err)
	}

	var textBuilder strings.Builder
	for i := 1; i <= pdfReader.NumPage(); i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read pdf page %d: %w", i, err)
		}
		if textBuilder.Len() > 0 {
			textBuilder.WriteString("\n")
		}
		textBuilder.WriteString(text)
	}
	return textBuilder.String(), nil
}

func extractDocxText(reader io.ReaderAt, size int64) (string, error) {
	doc, err := docx.ReadDocxFromMemory(reader, size)
	if err != nil {
		return "", fmt.Errorf("failed to parse docx: %w", err)
	}
	defer doc.Close()

	return stripTags(doc.Editable().GetContent()), nil
}

// stripTags turns the document XML returned by the docx reader into text,
// with one line per paragraph.
func stripTags(xml string) string {
	var (
		b     strings.Builder
		inTag bool
		tag   strings.Builder
	)
	for _, r := range xml {
		switch {
		case r == '<':
			inTag = true
			tag.Reset()
		case r == '>' && inTag:
			inTag = false
			switch tagName(tag.String()) {
			case "/w:p", "w:br":
				b.WriteByte('\n')
			case "w:tab":
				b.WriteByte('\t')
			}
		case inTag:
			tag.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return unescapeXML(b.String())
}

func tagName(tag string) string {
	fields := strings.Fields(tag)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimSuffix(fields[0], "/")
}

var xmlEntities = strings.NewReplacer(
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
	"&amp;", "&",
)

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}
