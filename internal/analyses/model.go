package analyses

import (
	"strings"
	"time"
	"unicode/utf8"
)

const maxJobTitleChars = 80

// Analysis is one stored scoring run.
type Analysis struct {
	ID             string        `json:"id"`
	UserID         string        `json:"userId"`
	JobTitle       string        `json:"jobTitle"`
	ResumeText     string        `json:"-"`
	JobDescription string        `json:"jobDescription"`
	Shape          Shape         `json:"shape"`
	Score          float64       `json:"score"`
	Result         DisplayResult `json:"result"`
	RawKey         string        `json:"-"`
	IsFavorite     bool          `json:"isFavorite"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// Summary is the history-list view of an analysis.
type Summary struct {
	ID         string    `json:"id"`
	JobTitle   string    `json:"jobTitle"`
	Score      float64   `json:"score"`
	IsFavorite bool      `json:"isFavorite"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (a Analysis) Summary() Summary {
	return Summary{
		ID:         a.ID,
		JobTitle:   a.JobTitle,
		Score:      a.Score,
		IsFavorite: a.IsFavorite,
		CreatedAt:  a.CreatedAt,
	}
}

// DeriveJobTitle uses the first non-blank line of the job description.
func DeriveJobTitle(jobDescription string) string {
	for _, line := range strings.Split(jobDescription, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxJobTitleChars {
			line = string([]rune(line)[:maxJobTitleChars])
		}
		return line
	}
	return "Untitled role"
}
