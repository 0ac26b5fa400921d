package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEvalCmd(flags *globalFlags) *cobra.Command {
	var showType bool
	cmd := &cobra.Command{
		Use:   "eval EXPR...",
		Short: "Evaluate each expression and print its value",
		Example: `  hostbridge eval 'sin(2.34)'
  hostbridge eval --type 'x = [1.0, 2.0]' 'sum(x)'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			s, err := openSession(ctx, flags, out)
			if err != nil {
				return err
			}

			failed := 0
			for _, src := range args {
				res, err := s.evaluate(ctx, src)
				if err != nil {
					_ = s.close(ctx, 1)
					return err
				}
				switch {
				case res.failed():
					failed++
					fmt.Fprintln(cmd.ErrOrStderr(), res)
				case showType:
					fmt.Fprintf(out, "%s :: %s\n", res.shown, res.typ)
				default:
					fmt.Fprintln(out, res.shown)
				}
			}

			code := 0
			if failed > 0 {
				code = 1
			}
			if err := s.close(ctx, code); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d expressions raised an exception", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&showType, "type", "t", false, "print the runtime type after each value")
	return cmd
}
