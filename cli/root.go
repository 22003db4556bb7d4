package cli

import (
	goflag "flag"
	"fmt"
	"io"
	"net/http"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/samandartukhtayev/user-sync/config"
	"github.com/samandartukhtayev/user-sync/synchronizer"
)

// options are the flags shared by every command
type options struct {
	configPath string
	baseURL    string
}

// load reads the config file and applies flag overrides
func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.baseURL != "" {
		cfg.API.BaseURL = o.baseURL
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// synchronizer builds a Synchronizer against the configured collection
func (o *options) synchronizer() (*synchronizer.Synchronizer, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}

	client, err := synchronizer.NewClient(cfg.API.BaseURL, &http.Client{Timeout: cfg.API.Timeout})
	if err != nil {
		return nil, err
	}
	return synchronizer.New(client, synchronizer.WithSuccessTTL(cfg.API.SuccessTTL)), nil
}

// NewRootCommand returns the user-sync command tree
func NewRootCommand() *cobra.Command {
	o := &options{}

	cmd := &cobra.Command{
		Use:           "user-sync",
		Short:         "Manage users in a remote users collection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&o.configPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&o.baseURL, "base-url", "", "base URL of the users collection (overrides the config file)")

	klogFlags := goflag.NewFlagSet("klog", goflag.ContinueOnError)
	klog.InitFlags(klogFlags)
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)

	cmd.AddCommand(
		newServeCommand(o),
		newListCommand(o),
		newAddCommand(o),
		newEditCommand(o),
		newDeleteCommand(o),
		newDemoCommand(o),
	)

	return cmd
}

var (
	successLine = color.New(color.FgGreen)
	failureLine = color.New(color.FgRed)
)

func printSuccess(w io.Writer, s *synchronizer.Synchronizer) {
	if msg := s.Status().Success; msg != "" {
		successLine.Fprintf(w, "✓ %s\n", msg)
	}
}

// PrintError writes a command failure the way the commands print results
func PrintError(w io.Writer, err error) {
	failureLine.Fprintf(w, "✗ %v\n", err)
}

func printUsers(w io.Writer, s *synchronizer.Synchronizer) {
	users := s.Users()
	if len(users) == 0 {
		fmt.Fprintln(w, "No users")
		return
	}
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s - Age: %d - %s\n", u.ID, u.Username, u.Age, u.Location)
	}
}
