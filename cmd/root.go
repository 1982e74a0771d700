package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gridrun/gridrun/errext"
	"github.com/gridrun/gridrun/errext/exitcodes"
	"github.com/gridrun/gridrun/lib/consts"
)

const defaultConfigFileName = "config.json"

// globalFlags are the global gridrun CLI flags and their values.
type globalFlags struct {
	configFilePath string
	quiet          bool
	noColor        bool
	logOutput      string
	logFormat      string
	verbose        bool
}

// globalState contains the globalFlags and accessors for most of the
// global process state, like the CLI arguments, env vars, standard
// streams and the process exit function. It allows us to mock or
// redirect all of these in tests.
type globalState struct {
	ctx context.Context

	fs      afero.Fs
	getwd   func() (string, error)
	args    []string
	envVars map[string]string

	defaultFlags, flags globalFlags

	outMutex       *sync.Mutex
	stdOut, stdErr *consoleWriter
	stdIn          io.Reader

	osExit       func(int)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)

	logger         *logrus.Logger
	fallbackLogger logrus.FieldLogger
}

// newGlobalState returns a globalState with the real deal: os.Stdout,
// os.Stderr, os.Environ(), os.Exit(), etc. Everything else should
// construct its own for testing.
func newGlobalState(ctx context.Context) *globalState {
	isDumbTerm := os.Getenv("TERM") == "dumb"
	stdoutTTY := !isDumbTerm && (isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))
	stderrTTY := !isDumbTerm && (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()))
	outMutex := &sync.Mutex{}
	stdOut := &consoleWriter{os.Stdout, colorable.NewColorable(os.Stdout), stdoutTTY, outMutex}
	stdErr := &consoleWriter{os.Stderr, colorable.NewColorable(os.Stderr), stderrTTY, outMutex}

	envVars := buildEnvMap(os.Environ())

	logger := &logrus.Logger{
		Out: stdErr,
		Formatter: &logrus.TextFormatter{
			ForceColors:   stderrTTY,
			DisableColors: !stderrTTY || envVars["NO_COLOR"] != "" || envVars["GRIDRUN_NO_COLOR"] != "",
		},
		Hooks: make(logrus.LevelHooks),
		Level: logrus.InfoLevel,
	}

	confDir, err := os.UserConfigDir()
	if err != nil {
		logger.WithError(err).Warn("could not get config directory")
		confDir = ".config"
	}

	defaultFlags := getDefaultFlags(confDir)

	return &globalState{
		ctx:          ctx,
		fs:           afero.NewOsFs(),
		getwd:        os.Getwd,
		args:         append(make([]string, 0, len(os.Args)), os.Args...),
		envVars:      envVars,
		defaultFlags: defaultFlags,
		flags:        getFlags(defaultFlags, envVars),
		outMutex:     outMutex,
		stdOut:       stdOut,
		stdErr:       stdErr,
		stdIn:        os.Stdin,
		osExit:       os.Exit,
		signalNotify: signal.Notify,
		signalStop:   signal.Stop,
		logger:       logger,
		fallbackLogger: &logrus.Logger{
			Out:       os.Stderr,
			Formatter: new(logrus.TextFormatter),
			Hooks:     make(logrus.LevelHooks),
			Level:     logrus.InfoLevel,
		},
	}
}

func getDefaultFlags(configDir string) globalFlags {
	return globalFlags{
		configFilePath: filepath.Join(configDir, "gridrun", defaultConfigFileName),
		logOutput:      "stderr",
	}
}

func getFlags(defaultFlags globalFlags, env map[string]string) globalFlags {
	result := defaultFlags

	// TODO: add env vars for the rest of the global flags?
	if val, ok := env["GRIDRUN_CONFIG"]; ok {
		result.configFilePath = val
	}
	if val, ok := env["GRIDRUN_LOG_OUTPUT"]; ok {
		result.logOutput = val
	}
	if val, ok := env["GRIDRUN_LOG_FORMAT"]; ok {
		result.logFormat = val
	}
	if env["NO_COLOR"] != "" || env["GRIDRUN_NO_COLOR"] != "" {
		result.noColor = true
	}
	return result
}

func buildEnvMap(environ []string) map[string]string {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v := parseEnvKeyValue(kv)
		env[k] = v
	}
	return env
}

func parseEnvKeyValue(kv string) (string, string) {
	if idx := strings.IndexRune(kv, '='); idx != -1 {
		return kv[:idx], kv[idx+1:]
	}
	return kv, ""
}

// This is to keep all fields needed for the main/root gridrun command
type rootCommand struct {
	globalState *globalState

	cmd *cobra.Command
}

func newRootCommand(gs *globalState) *rootCommand {
	c := &rootCommand{globalState: gs}
	// the base command when called without any subcommands.
	rootCmd := &cobra.Command{
		Use:               "gridrun",
		Short:             "runs browser test suites across a remote browser grid",
		Long:              "gridrun runs in-browser test suites against many browser and OS\ncombinations on a remote grid and folds the results into one verdict.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.persistentPreRunE,
	}

	rootCmd.PersistentFlags().AddFlagSet(rootCmdPersistentFlagSet(gs))
	rootCmd.SetArgs(gs.args[1:])
	rootCmd.SetOut(gs.stdOut)
	rootCmd.SetErr(gs.stdErr)
	rootCmd.SetIn(gs.stdIn)

	subCommands := []func(*globalState) *cobra.Command{
		getRunCmd, getLoginCmd, getVersionCmd,
	}
	for _, sc := range subCommands {
		rootCmd.AddCommand(sc(gs))
	}

	c.cmd = rootCmd
	return c
}

func (c *rootCommand) persistentPreRunE(*cobra.Command, []string) error {
	if err := c.setupLoggers(); err != nil {
		return err
	}
	stdlog.SetOutput(c.globalState.logger.Writer())
	c.globalState.logger.Debugf("gridrun version: v%s", consts.FullVersion())
	return nil
}

func (c *rootCommand) execute() {
	gs := c.globalState
	err := c.cmd.Execute()
	if err == nil {
		return
	}

	exitCode := int(exitcodes.GenericError)
	var ecerr errext.HasExitCode
	if errors.As(err, &ecerr) {
		exitCode = int(ecerr.ExitCode())
	}

	gs.logger.Error(err.Error())
	gs.osExit(exitCode)
}

// Execute parses the CLI arguments and executes the gridrun command
// hierarchy. It is called by main() and only returns through osExit.
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gs := newGlobalState(ctx)
	newRootCommand(gs).execute()
}

func rootCmdPersistentFlagSet(gs *globalState) *pflag.FlagSet {
	flags := pflag.NewFlagSet("", pflag.ContinueOnError)
	flags.SortFlags = false

	flags.BoolVarP(&gs.flags.verbose, "verbose", "v", gs.defaultFlags.verbose, "enable verbose logging")
	flags.BoolVarP(&gs.flags.quiet, "quiet", "q", gs.defaultFlags.quiet, "disable progress updates")
	flags.BoolVar(&gs.flags.noColor, "no-color", gs.defaultFlags.noColor, "disable colored output")
	flags.StringVar(&gs.flags.logOutput, "log-output", gs.defaultFlags.logOutput,
		"change the output for gridrun logs, possible values are stderr,stdout,none")
	flags.StringVar(&gs.flags.logFormat, "log-format", gs.defaultFlags.logFormat, "log output format")
	flags.StringVarP(&gs.flags.configFilePath, "config", "c", gs.defaultFlags.configFilePath, "JSON config file")
	must(cobra.MarkFlagFilename(flags, "config"))
	return flags
}

// RawFormatter it does nothing with the message just prints it
type RawFormatter struct{}

// Format renders a single log entry
func (f RawFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return append([]byte(entry.Message), '\n'), nil
}

func (c *rootCommand) setupLoggers() error {
	gs := c.globalState
	if gs.flags.verbose {
		gs.logger.SetLevel(logrus.DebugLevel)
	}

	switch gs.flags.logOutput {
	case "stderr":
		gs.logger.SetOutput(gs.stdErr)
	case "stdout":
		gs.logger.SetOutput(gs.stdOut)
	case "none":
		gs.logger.SetOutput(io.Discard)
	default:
		return fmt.Errorf("unsupported log output '%s'", gs.flags.logOutput)
	}

	switch gs.flags.logFormat {
	case "raw":
		gs.logger.SetFormatter(&RawFormatter{})
		gs.logger.Debug("Logger format: RAW")
	case "json":
		gs.logger.SetFormatter(&logrus.JSONFormatter{})
		gs.logger.Debug("Logger format: JSON")
	case "", "text":
		gs.logger.SetFormatter(&logrus.TextFormatter{
			ForceColors: gs.stdErr.isTTY, DisableColors: gs.flags.noColor || !gs.stdErr.isTTY,
		})
		gs.logger.Debug("Logger format: TEXT")
	default:
		return fmt.Errorf("unsupported log format '%s'", gs.flags.logFormat)
	}
	return nil
}

// consoleWriter syncs writes with a mutex and, if the output is a TTY,
// strips any unsupported color codes on Windows.
type consoleWriter struct {
	rawOut *os.File
	writer io.Writer
	isTTY  bool
	mutex  *sync.Mutex
}

func (w *consoleWriter) Write(p []byte) (n int, err error) {
	origLen := len(p)

	w.mutex.Lock()
	n, err = w.writer.Write(p)
	w.mutex.Unlock()

	if err != nil && n < origLen {
		return n, err
	}
	return origLen, err
}
