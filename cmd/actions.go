// -- cmd/actions.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scalpel-heal/api/schemas"
	"github.com/xkilldash9x/scalpel-heal/internal/dom"
	"github.com/xkilldash9x/scalpel-heal/internal/healing"
	"github.com/xkilldash9x/scalpel-heal/internal/resolver"
)

// resolveOutput is printed by the resolve command.
type resolveOutput struct {
	Found          bool                      `json:"found"`
	Selector       string                    `json:"selector"`
	Resolved       string                    `json:"resolved,omitempty"`
	Strategy       string                    `json:"strategy,omitempty"`
	ResponseTimeMs float64                   `json:"response_time_ms"`
	Attempted      []string                  `json:"attempted"`
	Element        *schemas.ElementSignature `json:"element,omitempty"`
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	var target targetFlags
	cmd := &cobra.Command{
		Use:   "resolve <selector>",
		Short: "Finds the element a selector refers to, trying fallback strategies when it no longer matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, opts, target, func(ctx context.Context, s *session) error {
				res, err := s.resolver.Resolve(ctx, s.page, args[0], resolver.Options{Context: s.lctx})
				out := resolveOutput{Selector: args[0]}

				var failure *resolver.ResolutionFailure
				switch {
				case errors.As(err, &failure):
					out.Attempted = failure.Attempted
					if werr := writeJSON(cmd.OutOrStdout(), out); werr != nil {
						return werr
					}
					return err
				case err != nil:
					return err
				}

				out.Found = true
				out.Resolved = res.Selector
				out.Strategy = res.Strategy
				out.ResponseTimeMs = res.ResponseTimeMs
				out.Attempted = res.Attempted
				out.Element = dom.ExtractSignature(res.Element)
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	addTargetFlags(cmd, &target)
	return cmd
}

func newClickCmd(opts *rootOptions) *cobra.Command {
	var target targetFlags
	cmd := &cobra.Command{
		Use:   "click <selector>",
		Short: "Clicks an element, healing the selector if it no longer matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, opts, target, func(ctx context.Context, s *session) error {
				return printAction(ctx, cmd, s, healing.Action{Kind: schemas.ActionClick, Target: args[0]}, nil)
			})
		},
	}
	cmd.Flags().Int("max-attempts", 0, "maximum fallback candidates to try")
	addTargetFlags(cmd, &target)
	return cmd
}

func newFillCmd(opts *rootOptions) *cobra.Command {
	var target targetFlags
	cmd := &cobra.Command{
		Use:   "fill <form-selector> <name=value>...",
		Short: "Fills form fields by logical name, falling back to alternative field selectors",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFields(args[1:])
			if err != nil {
				return err
			}
			return runSession(cmd, opts, target, func(ctx context.Context, s *session) error {
				skip := s.cfg.Healing().SkipMissingFields
				action := healing.Action{Kind: schemas.ActionFill, Target: args[0], Fields: fields}
				return printAction(ctx, cmd, s, action, &skip)
			})
		},
	}
	cmd.Flags().Bool("skip-missing", false, "skip fields that cannot be found instead of failing")
	addTargetFlags(cmd, &target)
	return cmd
}

func newNavigateCmd(opts *rootOptions) *cobra.Command {
	var target targetFlags
	cmd := &cobra.Command{
		Use:   "navigate <label>",
		Short: "Clicks the navigation element for a label",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, opts, target, func(ctx context.Context, s *session) error {
				return printAction(ctx, cmd, s, healing.Action{Kind: schemas.ActionNavigate, Target: args[0]}, nil)
			})
		},
	}
	addTargetFlags(cmd, &target)
	return cmd
}

func printAction(ctx context.Context, cmd *cobra.Command, s *session, action healing.Action, skipMissing *bool) error {
	res, err := s.healer.Act(ctx, s.page, action, healing.ActOptions{
		SkipMissing: skipMissing,
		Context:     s.lctx,
	})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), res)
}

// parseFields parses name=value pairs. Values may contain '='.
func parseFields(args []string) ([]healing.FormField, error) {
	fields := make([]healing.FormField, 0, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid field %q, expected name=value", arg)
		}
		fields = append(fields, healing.FormField{Name: name, Value: value})
	}
	return fields, nil
}
