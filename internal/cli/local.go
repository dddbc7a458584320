package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"resume-tailor/internal/analyses"
)

func newNormalizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize [result.json|-]",
		Short: "Convert a raw analysis payload into the display model",
		Long: `Convert a raw analysis payload, in any of the legacy, enterprise or
hybrid shapes, into the display model. Unreadable input degrades to the
default result instead of failing.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFromContext(cmd.Context())
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			raw, err := readText(path)
			if err != nil {
				return err
			}
			d := analyses.Transform([]byte(raw))
			return e.print(d, func(w io.Writer) { writeDisplay(w, d) })
		},
	}
}

func newValidateCommand() *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run the submission checks without calling the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := envFromContext(cmd.Context())
			resume, err := readResume(cmd.Context(), opts.resumePath)
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
			return e.print(map[string]bool{"valid": true}, func(w io.Writer) {
				fmt.Fprintln(w, "OK")
			})
		},
	}
	cmd.Flags().StringVarP(&opts.resumePath, "resume", "r", "", "resume file (.txt, .pdf, .docx)")
	cmd.Flags().StringVarP(&opts.jobPath, "job", "j", "", "job description text file, or - for stdin")
	_ = cmd.MarkFlagRequired("resume")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}

func reportValidation(e *env, err error) error {
	var verr *analyses.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	_ = e.print(verr, func(w io.Writer) {
		fmt.Fprintf(w, "%s (%s)\n", verr.Message, verr.Code)
	})
	return err
}
