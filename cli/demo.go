package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/samandartukhtayev/user-sync/models"
	"github.com/samandartukhtayev/user-sync/synchronizer"
)

func newDemoCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Walk through refresh, create, edit and delete against the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.synchronizer()
			if err != nil {
				return err
			}
			return runDemo(cmd, s)
		},
	}
}

func runDemo(cmd *cobra.Command, s *synchronizer.Synchronizer) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "=== User Sync Demo ===")

	fmt.Fprintln(out, "\n--- Loading users ---")
	if err := s.Refresh(ctx); err != nil {
		return err
	}
	printUsers(out, s)

	fmt.Fprintln(out, "\n--- Validation happens before any request ---")
	if err := s.Save(ctx, models.Draft{Username: "  ", Location: "la"}); err != nil {
		PrintError(out, err)
	}

	fmt.Fprintln(out, "\n--- Creating user ---")
	if err := s.Save(ctx, models.Draft{Username: "bob", Age: 25, Location: "la"}); err != nil {
		return err
	}
	report(out, s)

	created, ok := s.LastSaved()
	if !ok {
		return fmt.Errorf("created user was not recorded")
	}

	fmt.Fprintln(out, "\n--- Editing user ---")
	if err := s.BeginEdit(created); err != nil {
		return err
	}
	draft := s.Draft()
	draft.Username = "bobby"
	draft.Age++
	if err := s.Save(ctx, draft); err != nil {
		return err
	}
	report(out, s)

	fmt.Fprintln(out, "\n--- Deleting user ---")
	if err := s.Remove(ctx, created.ID); err != nil {
		return err
	}
	report(out, s)

	fmt.Fprintln(out, "\n=== Demo Complete ===")
	return nil
}

func report(out io.Writer, s *synchronizer.Synchronizer) {
	printSuccess(out, s)
	printUsers(out, s)
}
