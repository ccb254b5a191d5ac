// -- cmd/compare.go --
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scalpel-heal/api/schemas"
	"github.com/xkilldash9x/scalpel-heal/internal/dom"
	"github.com/xkilldash9x/scalpel-heal/internal/dom/htmldoc"
	"github.com/xkilldash9x/scalpel-heal/internal/similarity"
)

type compareOutput struct {
	Score float64                   `json:"score"`
	A     *schemas.ElementSignature `json:"a"`
	B     *schemas.ElementSignature `json:"b"`
}

func newCompareCmd(opts *rootOptions) *cobra.Command {
	var selectorB string
	cmd := &cobra.Command{
		Use:   "compare <selector> <a.html> <b.html>",
		Short: "Scores how similar the element a selector matches is across two versions of a page",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			selA, selB := args[0], args[0]
			if selectorB != "" {
				selB = selectorB
			}

			a, err := signatureFromFile(cmd.Context(), args[1], selA)
			if err != nil {
				return err
			}
			b, err := signatureFromFile(cmd.Context(), args[2], selB)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), compareOutput{
				Score: similarity.Elements(a, b),
				A:     a,
				B:     b,
			})
		},
	}
	cmd.Flags().StringVar(&selectorB, "selector-b", "", "selector for the second document (defaults to <selector>)")
	return cmd
}

func signatureFromFile(ctx context.Context, path, selector string) (*schemas.ElementSignature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := htmldoc.Parse(f)
	if err != nil {
		return nil, err
	}
	el, err := doc.QuerySelector(ctx, selector)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, fmt.Errorf("no element matches %q in %s", selector, path)
	}
	return dom.ExtractSignature(el), nil
}
