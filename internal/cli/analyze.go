package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"resume-tailor/internal/analyses"
	"resume-tailor/internal/client"
	"resume-tailor/internal/extract"
	"resume-tailor/internal/usage"
)

// ErrLimitReached is returned when the local gate blocks an analysis.
var ErrLimitReached = errors.New("analysis limit reached")

type analyzeOptions struct {
	resumePath string
	jobPath    string
}

func newAnalyzeCommand() *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Score a resume against a job description",
		Long: `Score a resume against a job description.

The resume may be a .txt, .pdf or .docx file; the job description is plain
text. Both are checked locally before anything is sent, and the local usage
gate is consulted first so an exhausted guest or free account is told to
upgrade without spending a request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), envFromContext(cmd.Context()), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.resumePath, "resume", "r", "", "resume file (.txt, .pdf, .docx)")
	cmd.Flags().StringVarP(&opts.jobPath, "job", "j", "", "job description text file, or - for stdin")
	_ = cmd.MarkFlagRequired("resume")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func runAnalyze(ctx context.Context, e *env, opts analyzeOptions) error {
	resume, err := readResume(ctx, opts.resumePath)
	if err != nil {
		return err
	}
	job, err := readText(opts.jobPath)
	if err != nil {
		return err
	}
	if err := analyses.ValidateSubmission(resume, job); err != nil {
		return reportValidation(e, err)
	}

	_, tracker := e.session(ctx)
	check, err := tracker.CheckCanAnalyze(ctx)
	if err != nil {
		return err
	}
	if !check.Allowed {
		return reportLimit(e, check)
	}

	out, err := e.api.Analyze(ctx, resume, job, uuid.NewString())
	if err != nil {
		return fmt.Errorf("%s: %w", client.MessageKey(err), err)
	}
	if err := tracker.IncrementUsage(ctx); err != nil {
		return err
	}

	return e.print(out.Display, func(w io.Writer) {
		writeDisplay(w, out.Display)
		if out.CreditsRemaining != nil && out.CreditsTotal != nil {
			fmt.Fprintf(w, "\nCredits: %d of %d remaining\n", *out.CreditsRemaining, *out.CreditsTotal)
		}
	})
}

func reportLimit(e *env, check usage.Check) error {
	code := check.Reason.ErrorCode()
	_ = e.print(map[string]any{"error_code": code, "check": check}, func(w io.Writer) {
		fmt.Fprintf(w, "You've used %d of %d analyses. Upgrade your plan to continue.\n", check.Used, check.Limit)
	})
	return fmt.Errorf("%w: %s", ErrLimitReached, code)
}

func readResume(ctx context.Context, path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".docx":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		res, err := extract.ParseResume(ctx, data, filepath.Base(path))
		if err != nil {
			return "", fmt.Errorf("read resume: %w", err)
		}
		return res.Text, nil
	default:
		return readText(path)
	}
}

func readText(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func writeDisplay(w io.Writer, d analyses.DisplayResult) {
	fmt.Fprintf(w, "Score: %.0f%%\n", d.Score)
	fmt.Fprintf(w, "  keywords %.0f  semantic %.0f  tone %.0f\n", d.Breakdown.Keywords, d.Breakdown.Semantic, d.Breakdown.Tone)
	if d.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", d.Summary)
	}
	if len(d.Keywords.Present) > 0 {
		fmt.Fprintf(w, "\nMatched: %s\n", strings.Join(d.Keywords.Present, ", "))
	}
	if len(d.Keywords.Missing) > 0 {
		fmt.Fprintf(w, "Missing: %s\n", strings.Join(d.Keywords.Missing, ", "))
	}
	if len(d.Suggestions) > 0 {
		fmt.Fprintln(w, "\nSuggestions:")
		for _, s := range d.Suggestions {
			fmt.Fprintf(w, "  [%s] %s: %s\n", s.Type, s.Title, s.Description)
		}
	}
}
