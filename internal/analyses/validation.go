package analyses

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinResumeChars         = 200
	MinJobDescriptionChars = 100
	MaxInputChars          = 10000
)

const (
	FieldResume         = "resume"
	FieldJobDescription = "job_description"
)

// ValidationError describes why a submission was refused.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script[\s\S]*?>[\s\S]*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)<iframe[\s\S]*?>`),
	regexp.MustCompile(`(?i)eval\s*\(`),
	regexp.MustCompile(`(?i)<embed[\s\S]*?>`),
	regexp.MustCompile(`(?i)<object[\s\S]*?>`),
}

// Markers left behind when a binary document is pasted as text.
var fileSignatures = []string{
	"%PDF-",
	"endobj",
	"/FlateDecode",
	"PK\x03\x04",
	"[Content_Types].xml",
	"word/document.xml",
}

type fieldRules struct {
	name     string
	label    string
	prefix   string
	minChars int
}

var (
	resumeRules = fieldRules{name: FieldResume, label: "Resume", prefix: "RESUME", minChars: MinResumeChars}
	jobRules    = fieldRules{name: FieldJobDescription, label: "Job description", prefix: "JOB_DESCRIPTION", minChars: MinJobDescriptionChars}
)

// ValidateSubmission checks a resume and job description before any upstream
// call. Checks run in order: required, file paste, suspicious content, too
// short, too long; the resume is checked before the job description at each step.
func ValidateSubmission(resume, jobDescription string) error {
	fields := []struct {
		rules fieldRules
		text  string
	}{
		{resumeRules, resume},
		{jobRules, jobDescription},
	}
	checks := []func(fieldRules, string) *ValidationError{
		checkRequired,
		checkFilePaste,
		checkSuspicious,
		checkTooShort,
		checkTooLong,
	}
	for _, check := range checks {
		for _, f := range fields {
			if verr := check(f.rules, f.text); verr != nil {
				return verr
			}
		}
	}
	return nil
}

func checkRequired(r fieldRules, text string) *ValidationError {
	if strings.TrimSpace(text) != "" {
		return nil
	}
	return &ValidationError{
		Field:   r.name,
		Code:    r.prefix + "_REQUIRED",
		Message: r.label + " text is required",
	}
}

func checkFilePaste(r fieldRules, text string) *ValidationError {
	if !LooksLikeFilePaste(text) {
		return nil
	}
	return &ValidationError{
		Field:   r.name,
		Code:    "FILE_PASTE_DETECTED",
		Message: r.label + " looks like the raw contents of a file. Upload the file or paste its text instead.",
	}
}

func checkSuspicious(r fieldRules, text string) *ValidationError {
	if !ContainsSuspiciousContent(text) {
		return nil
	}
	return &ValidationError{
		Field:   r.name,
		Code:    "SUSPICIOUS_CONTENT",
		Message: fmt.Sprintf("Invalid content detected in %s. Please provide plain text only.", strings.ToLower(r.label)),
	}
}

func checkTooShort(r fieldRules, text string) *ValidationError {
	if utf8.RuneCountInString(strings.TrimSpace(text)) >= r.minChars {
		return nil
	}
	return &ValidationError{
		Field:   r.name,
		Code:    r.prefix + "_TOO_SHORT",
		Message: fmt.Sprintf("%s text is too short (minimum %d characters)", r.label, r.minChars),
	}
}

func checkTooLong(r fieldRules, text string) *ValidationError {
	if utf8.RuneCountInString(text) <= MaxInputChars {
		return nil
	}
	return &ValidationError{
		Field:   r.name,
		Code:    r.prefix + "_TOO_LONG",
		Message: fmt.Sprintf("%s text is too long (maximum %d characters)", r.label, MaxInputChars),
	}
}

// ContainsSuspiciousContent reports markup or script patterns in text.
func ContainsSuspiciousContent(text string) bool {
	for _, pattern := range suspiciousPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// LooksLikeFilePaste reports text that is really binary document content:
// NUL bytes, known container signatures, or mostly unprintable runes.
func LooksLikeFilePaste(text string) bool {
	if text == "" {
		return false
	}
	if strings.ContainsRune(text, 0) {
		return true
	}
	for _, sig := range fileSignatures {
		if strings.Contains(text, sig) {
			return true
		}
	}
	var total, odd int
	for _, r := range text {
		total++
		if r == utf8.RuneError || (unicode.IsControl(r) && !unicode.IsSpace(r)) {
			odd++
		}
	}
	return total >= 50 && odd*10 > total
}
