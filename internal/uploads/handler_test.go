package uploads

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"resume-tailor/internal/extract"
)

func newUploadRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h.RegisterRoutes(r.Group("/api"))
	return r
}

func multipartRequest(t *testing.T, field, name string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		w, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := w.Write(content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/parse-resume", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func docxBytes(t *testing.T, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"word/document.xml": `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` +
			text + `</w:t></w:r></w:p></w:body></w:document>`,
		"word/_rels/document.xml.rels": `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
	}
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create entry: %v", err)
		}
		_, _ = w.Write([]byte(content))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		ErrorCode string `json:"error_code"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.ErrorCode
}

func TestParseResumeDocx(t *testing.T) {
	r := newUploadRouter(NewHandler())
	text := strings.Repeat("Backend engineer with Go and Postgres experience. ", 4)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, multipartRequest(t, "file", "resume.docx", docxBytes(t, text)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var got extract.Result
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if got.Text != strings.TrimSpace(text) || got.CharacterCount != len(strings.TrimSpace(text)) {
		t.Fatalf("unexpected result %+v", got)
	}
	if got.FileType != extract.MimeDOCX {
		t.Fatalf("unexpected file type %q", got.FileType)
	}
}

func TestParseResumeMissingFile(t *testing.T) {
	r := newUploadRouter(NewHandler())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, multipartRequest(t, "", "", nil))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "FILE_REQUIRED" {
		t.Fatalf("expected FILE_REQUIRED, got %q", code)
	}
}

func TestParseResumeErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{extract.ErrUnsupported, http.StatusBadRequest, "UNSUPPORTED_FILE_TYPE"},
		{extract.ErrEmptyFile, http.StatusBadRequest, "FILE_EMPTY"},
		{fmt.Errorf("%w: 12 characters", extract.ErrTooShort), http.StatusUnprocessableEntity, "TEXT_TOO_SHORT"},
		{extract.ErrNoText, http.StatusUnprocessableEntity, "NO_TEXT_EXTRACTED"},
		{fmt.Errorf("parse pdf: broken xref"), http.StatusUnprocessableEntity, "PARSE_FAILED"},
	}
	for _, tc := range cases {
		h := &Handler{Parse: func(ctx context.Context, data []byte, fileName string) (extract.Result, error) {
			return extract.Result{}, tc.err
		}}
		resp := httptest.NewRecorder()
		newUploadRouter(h).ServeHTTP(resp, multipartRequest(t, "file", "resume.pdf", []byte("%PDF-1.4")))
		if resp.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, resp.Code)
		}
		if code := errorCode(t, resp); code != tc.code {
			t.Fatalf("%v: expected %q, got %q", tc.err, tc.code, code)
		}
	}
}

func TestParseResumeRejectsUnsupportedExtension(t *testing.T) {
	r := newUploadRouter(NewHandler())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, multipartRequest(t, "file", "resume.txt", []byte(strings.Repeat("a", 200))))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "UNSUPPORTED_FILE_TYPE" {
		t.Fatalf("expected UNSUPPORTED_FILE_TYPE, got %q", code)
	}
}

func TestParseResumeTooLarge(t *testing.T) {
	r := newUploadRouter(NewHandler())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, multipartRequest(t, "file", "resume.pdf", make([]byte, extract.MaxFileBytes+1)))
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "FILE_TOO_LARGE" {
		t.Fatalf("expected FILE_TOO_LARGE, got %q", code)
	}
}
