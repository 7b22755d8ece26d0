package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/fieldsync/internal/record"
)

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Text      string
	Image     string // pre-encoded image, usually a data URL
	ImageFile string // file holding the encoded image
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Record a submission in the local store",
		Long: `Record a submission in the pending collection.

Submitting never needs the network. The record is pushed by the next
sync, or by watch when connectivity returns.

Examples:
  fieldsync submit --text "leaf spots on the east field"
  fieldsync submit --text "stem rot" --image-file ./photo.b64`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Text, "text", "t", "", "free-text description")
	cmd.Flags().StringVar(&opts.Image, "image", "", "encoded image (data URL)")
	cmd.Flags().StringVar(&opts.ImageFile, "image-file", "", "read the encoded image from a file")
	cmd.MarkFlagsMutuallyExclusive("image", "image-file")

	return cmd
}

func runSubmit(opts *SubmitOptions, cmd *cobra.Command) error {
	image := opts.Image
	if opts.ImageFile != "" {
		data, err := os.ReadFile(opts.ImageFile)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read image file", err)
		}
		image = string(data)
	}

	s, err := openSession(cmd.Context(), opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	sub, err := s.client.Create(cmd.Context(), record.RawInput{Text: opts.Text, Image: image})
	if err != nil {
		_ = s.out.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "submission not recorded", err)
	}

	return s.out.Success(sub, func(w io.Writer) {
		fmt.Fprintf(w, "Queued %s\n", sub.ID)
	})
}
