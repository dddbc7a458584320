// Package extract pulls plain text out of uploaded resume files.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	// MaxFileBytes is the largest upload accepted for parsing.
	MaxFileBytes = 5 << 20
	// MinTextChars is the shortest extracted text that still counts as a resume.
	MinTextChars = 100
)

var (
	ErrEmptyFile   = errors.New("file is empty")
	ErrTooLarge    = errors.New("file too large")
	ErrUnsupported = errors.New("unsupported file type")
	ErrNoText      = errors.New("no text could be extracted")
	ErrTooShort    = errors.New("extracted text too short")
)

// Result is the payload returned by /api/parse-resume.
type Result struct {
	Text           string `json:"text"`
	CharacterCount int    `json:"character_count"`
	FileType       string `json:"file_type"`
}

// ParseResume validates an uploaded file by size and extension and extracts its text.
// Files are processed in memory and never stored.
func ParseResume(ctx context.Context, data []byte, fileName string) (Result, error) {
	if len(data) == 0 {
		return Result{}, ErrEmptyFile
	}
	if len(data) > MaxFileBytes {
		return Result{}, fmt.Errorf("%w: maximum size is %dMB", ErrTooLarge, MaxFileBytes>>20)
	}

	var mimeType string
	switch ext := strings.ToLower(filepath.Ext(fileName)); ext {
	case ".pdf":
		mimeType = MimePDF
	case ".docx":
		mimeType = MimeDOCX
	case "":
		return Result{}, fmt.Errorf("%w: file must have a .pdf or .docx extension", ErrUnsupported)
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}

	text, err := ExtractTextFromBytes(ctx, data, mimeType, fileName)
	if err != nil {
		return Result{}, err
	}
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return Result{}, ErrNoText
	}
	if n < MinTextChars {
		return Result{}, fmt.Errorf("%w: %d characters, need at least %d", ErrTooShort, n, MinTextChars)
	}
	return Result{Text: text, CharacterCount: n, FileType: mimeType}, nil
}

// ExtractTextFromBytes extracts text from an in-memory payload.
func ExtractTextFromBytes(ctx context.Context, data []byte, mimeType string, fileName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	normalized := normalizeMimeType(mimeType, fileName, data)
	switch normalized {
	case MimePDF:
		text, err := extractPDF(data)
		if err != nil {
			return "", fmt.Errorf("parse pdf: %w", err)
		}
		return text, nil
	case MimeDOCX:
		text, err := extractDOCX(data)
		if err != nil {
			return "", fmt.Errorf("parse docx: %w", err)
		}
		return text, nil
	default:
		return "", fmt.Errorf("%w: unsupported mime type: %s", ErrUnsupported, normalized)
	}
}

func extractPDF(data []byte) (text string, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	pdfReader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty docx data")
	}
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		// Some exporters omit parts the docx reader insists on.
		raw, zerr := documentXML(data)
		if zerr != nil {
			return "", err
		}
		return stripDocxXML(raw), nil
	}
	defer doc.Close()
	return stripDocxXML(doc.Editable().GetContent()), nil
}

func documentXML(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		raw, err := io.ReadAll(rc)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	return "", errors.New("document.xml file not found")
}

func stripDocxXML(raw string) string {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return strings.TrimSpace(buf.String())
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.Write(t)
		case xml.StartElement:
			if t.Name.Local == "tab" {
				buf.WriteString("\t")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p", "br":
				if buf.Len() > 0 {
					buf.WriteString("\n")
				}
			}
		}
	}
	return strings.TrimSpace(buf.String())
}

func normalizeMimeType(mimeType string, fileName string, data []byte) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	if clean != "application/zip" {
		return clean
	}
	if isDocxArchive(data) || strings.EqualFold(filepath.Ext(fileName), ".docx") {
		return MimeDOCX
	}
	return clean
}

func isDocxArchive(data []byte) bool {
	_, err := documentXML(data)
	return err == nil
}
