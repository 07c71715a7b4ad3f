package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nishad/eudravigilance/internal/source"
	"github.com/nishad/eudravigilance/internal/xmlextract"
)

var validateXSD string

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate --schema <xsd> <source_uri>",
		Short: "XSD-validate every file a source URI resolves to, without loading anything",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	cmd.Flags().StringVar(&validateXSD, "schema", "", "Path to the E2B(R3) XSD")
	cmd.MarkFlagRequired("schema")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	sourceURI := args[0]

	schema, err := xmlextract.LoadSchema(validateXSD)
	if err != nil {
		return fmt.Errorf("loading XSD: %w", err)
	}
	defer schema.Close()

	ctx := context.Background()
	openers, err := source.List(ctx, sourceURI)
	if err != nil {
		return fmt.Errorf("listing source: %w", err)
	}

	failures := 0
	for _, op := range openers {
		rc, err := op.Open(ctx)
		if err != nil {
			fmt.Printf("%s: FAILED to open: %v\n", op.Name(), err)
			failures++
			continue
		}

		ok, messages, err := schema.Validate(rc)
		rc.Close()
		if err != nil {
			fmt.Printf("%s: FAILED: %v\n", op.Name(), err)
			failures++
			continue
		}
		if !ok {
			fmt.Printf("%s: INVALID\n", op.Name())
			for _, m := range messages {
				fmt.Printf("  - %s\n", m)
			}
			failures++
			continue
		}
		fmt.Printf("%s: OK\n", op.Name())
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d file(s) failed validation", failures, len(openers))
	}
	return nil
}
