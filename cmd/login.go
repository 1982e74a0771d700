package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/guregu/null.v3"

	"github.com/gridrun/gridrun/cloudapi"
	"github.com/gridrun/gridrun/errext"
	"github.com/gridrun/gridrun/errext/exitcodes"
)

// cmdLogin handles the gridrun login sub-command
type cmdLogin struct {
	gs *globalState
}

func getLoginCmd(gs *globalState) *cobra.Command {
	c := &cmdLogin{gs: gs}

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Store grid credentials in the gridrun config",
		Long: `Store grid credentials in the gridrun config.

The username and access key are kept in gridrun's persistent configuration and
used by "gridrun run" to authenticate against the grid provider. They can also
be supplied per run through the GRIDRUN_USERNAME and GRIDRUN_ACCESS_KEY
environment variables.`,
		Example: `
  # Store credentials, prompting for the access key
  gridrun login -u my-user

  # Store credentials without any prompts
  gridrun login -u my-user -k my-access-key

  # Display the stored credentials
  gridrun login -s

  # Forget the stored credentials
  gridrun login -r`[1:],
		Args: cobra.NoArgs,
		RunE: c.run,
	}

	loginCmd.Flags().StringP("username", "u", "", "grid `username`")
	loginCmd.Flags().StringP("access-key", "k", "", "grid access `key`")
	loginCmd.Flags().BoolP("show", "s", false, "display saved credentials and exit")
	loginCmd.Flags().BoolP("reset", "r", false, "forget the saved credentials")
	return loginCmd
}

func (c *cmdLogin) run(cmd *cobra.Command, _ []string) error {
	gs := c.gs

	currentDiskConf, err := readDiskConfig(gs)
	if err != nil {
		return err
	}

	// Only the grid section of the config file is modified, everything
	// else the user put there is written back untouched.
	gridConf := cloudapi.Config{}
	if len(currentDiskConf.Grid) > 0 {
		if jsonerr := json.Unmarshal(currentDiskConf.Grid, &gridConf); jsonerr != nil {
			return jsonerr
		}
	}

	show := getNullBool(cmd.Flags(), "show")
	reset := getNullBool(cmd.Flags(), "reset")
	username := getNullString(cmd.Flags(), "username")
	accessKey := getNullString(cmd.Flags(), "access-key")

	switch {
	case reset.Bool:
		gridConf.Username = null.StringFromPtr(nil)
		gridConf.AccessKey = null.StringFromPtr(nil)
		printToStdout(gs, "  credentials reset\n")
	case show.Bool:
		valueFor := func(v null.String) string {
			if !v.Valid {
				return "(not set)"
			}
			return v.String
		}
		printToStdout(gs, fmt.Sprintf("  username: %s\n  access key: %s\n",
			valueFor(gridConf.Username), valueFor(gridConf.AccessKey)))
		return nil
	default:
		if !username.Valid {
			username, err = c.promptLine("Username: ")
			if err != nil {
				return err
			}
		}
		if !accessKey.Valid {
			accessKey, err = c.promptSecret("Access key: ")
			if err != nil {
				return err
			}
		}
		if username.String == "" || accessKey.String == "" {
			return errext.WithExitCodeIfNone(
				errors.New("both a username and an access key are required"), exitcodes.InvalidConfig)
		}
		gridConf.Username = username
		gridConf.AccessKey = accessKey
		printToStdout(gs, "  credentials saved\n")
	}

	if currentDiskConf.Grid, err = json.Marshal(gridConf); err != nil {
		return err
	}
	return writeDiskConfig(gs, currentDiskConf)
}

func (c *cmdLogin) promptLine(label string) (null.String, error) {
	printToStdout(c.gs, label)
	line, err := bufio.NewReader(c.gs.stdIn).ReadString('\n')
	if err != nil {
		return null.String{}, err
	}
	return null.StringFrom(strings.TrimSpace(line)), nil
}

func (c *cmdLogin) promptSecret(label string) (null.String, error) {
	printToStdout(c.gs, label)
	if !term.IsTerminal(int(syscall.Stdin)) { //nolint:unconvert
		c.gs.logger.Warn("stdin is not a terminal, falling back to plain text input")
		return c.promptLine("")
	}
	secret, err := term.ReadPassword(int(syscall.Stdin))
	printToStdout(c.gs, "\n")
	if err != nil {
		return null.String{}, err
	}
	return null.StringFrom(strings.TrimSpace(string(secret))), nil
}
