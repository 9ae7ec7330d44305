package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

// newOCRCmd creates the 'ocr' subcommand: only the recognition gate, for
// processing a staging directory filled by a separate crawl process.
func newOCRCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ocr",
		Short: "Run only the OCR gate over the image staging directory",
		RunE:  runOCRCommand,
	}
}

func runOCRCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	gate, cleanup, err := appInstance.NewGate()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := gate.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
