package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/samandartukhtayev/user-sync/models"
	"github.com/samandartukhtayev/user-sync/synchronizer"
)

func newListCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.synchronizer()
			if err != nil {
				return err
			}
			if err := s.Refresh(cmd.Context()); err != nil {
				return err
			}
			printUsers(cmd.OutOrStdout(), s)
			return nil
		},
	}
}

// draftFlags binds the editable user fields to command flags
func draftFlags(fs *pflag.FlagSet, d *models.Draft) {
	fs.StringVar(&d.Username, "username", "", "user name")
	fs.IntVar(&d.Age, "age", 0, "age in years")
	fs.StringVar(&d.Location, "location", "", "location")
}

func newAddCommand(o *options) *cobra.Command {
	var draft models.Draft

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.synchronizer()
			if err != nil {
				return err
			}
			if err := s.Save(cmd.Context(), draft); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), s)
			printUsers(cmd.OutOrStdout(), s)
			return nil
		},
	}
	draftFlags(cmd.Flags(), &draft)

	return cmd
}

func newEditCommand(o *options) *cobra.Command {
	var changes models.Draft

	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Update a user; fields without a flag keep their current value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.synchronizer()
			if err != nil {
				return err
			}
			record, err := find(cmd, s, args[0])
			if err != nil {
				return err
			}
			if err := s.BeginEdit(record); err != nil {
				return err
			}

			draft := s.Draft()
			flags := cmd.Flags()
			if flags.Changed("username") {
				draft.Username = changes.Username
			}
			if flags.Changed("age") {
				draft.Age = changes.Age
			}
			if flags.Changed("location") {
				draft.Location = changes.Location
			}

			if err := s.Save(cmd.Context(), draft); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), s)
			printUsers(cmd.OutOrStdout(), s)
			return nil
		},
	}
	draftFlags(cmd.Flags(), &changes)

	return cmd
}

func newDeleteCommand(o *options) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a user after confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.synchronizer()
			if err != nil {
				return err
			}
			record, err := find(cmd, s, args[0])
			if err != nil {
				return err
			}

			if !yes {
				question := fmt.Sprintf("Delete user %s (%s)?", record.Username, record.ID)
				ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), question)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}

			if err := s.Remove(cmd.Context(), record.ID); err != nil {
				return err
			}
			printSuccess(cmd.OutOrStdout(), s)
			printUsers(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without asking for confirmation")

	return cmd
}

// find loads the collection and returns the record with the given id
func find(cmd *cobra.Command, s *synchronizer.Synchronizer, id string) (models.User, error) {
	if err := s.Refresh(cmd.Context()); err != nil {
		return models.User{}, err
	}
	for _, u := range s.Users() {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("user %s not found", id)
}

// confirm asks a yes/no question; anything but y or yes is a no
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	fmt.Fprintf(out, "%s [y/N]: ", question)

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
