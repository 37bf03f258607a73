package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pellux-network/clog/conf"
	"github.com/pellux-network/clog/journal"
	"github.com/pellux-network/clog/logging"
)

const AppVersion = "0.2.0"

// noCommandText is printed to stdout when no subcommand is given.
const noCommandText = "No command provided"

var errNoCommand = errors.New("no command provided")

// app carries what every subcommand needs.
type app struct {
	stdout io.Writer
	stderr io.Writer

	confPath string
	logFile  string
	logLevel string
	noColor  bool

	conf   conf.Conf
	closer io.Closer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stdout, noCommandText)
		return 1
	}
	a := &app{stdout: stdout, stderr: stderr}
	defer a.close()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(context.Background()); err != nil {
		if errors.Is(err, errNoCommand) {
			fmt.Fprintln(stdout, noCommandText)
			return 1
		}
		log.Debug().Err(err).Msg("Command failed")
		fmt.Fprintf(stderr, "clog: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "clog",
		Short:   "Read and replay a header/record/update log",
		Version: AppVersion,
		Long: `clog reads a line-oriented log where every line starts with a type character:

  ! <key> [columns...]   header: opens a scope for the lines that follow
  * <key> [values...]    record: declares or replaces an entry
  $ <key> [values...]    update: overwrites values of an existing entry ("-" keeps one)

A blank line closes the current header scope. Entries inside a scope are
keyed "<header>/<key>".`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			return errNoCommand
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.confPath, "config", conf.DefaultPath, "config file")
	flags.StringVarP(&a.logFile, "file", "f", "", "log file to read (overrides logfile in the config)")
	flags.StringVar(&a.logLevel, "log-level", "", "diagnostics level: panic, fatal, error, warn, info, debug, trace")
	flags.BoolVar(&a.noColor, "no-color", false, "never colour diagnostics")

	root.AddCommand(
		a.listCmd(),
		a.checkCmd(),
		a.traceCmd(),
		a.appendCmd(),
		a.compactCmd(),
		a.importCmd(),
		a.watchCmd(),
		a.initCmd(),
	)
	return root
}

// setup loads the config and starts logging before any subcommand runs.
// Until the config is read, diagnostics go to stderr at the --log-level
// level.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	a.initLogging()

	c, err := conf.Load(a.confPath)
	if err != nil {
		return err
	}
	if a.logFile != "" {
		c.LogFile = a.logFile
	}
	a.conf = c

	a.close()
	a.closer = logging.Init(a.stderr, logging.Options{Level: c.LogLevel, Dir: c.LogDir, NoColor: a.noColor})
	if a.logLevel != "" {
		logging.SetLevel(a.logLevel)
	}
	log.Debug().Str("config", logging.CleanPath(a.confPath)).Str("log", logging.CleanPath(c.LogFile)).Msg("Configuration ready")
	return nil
}

// initLogging starts console-only logging at the --log-level level.
func (a *app) initLogging() {
	a.closer = logging.Init(a.stderr, logging.Options{Level: a.logLevel, NoColor: a.noColor})
}

func (a *app) close() {
	if a.closer != nil {
		a.closer.Close()
	}
}

// load reads and replays the whole log.
func (a *app) load() (*journal.Model, *journal.State, error) {
	m, err := journal.ReadLogFile(a.conf.LogFile, a.conf.ReaderOptions())
	if err != nil {
		return nil, nil, err
	}
	st, err := journal.Replay(m, a.conf.ReplayOptions())
	if err != nil {
		return nil, nil, err
	}
	return m, st, nil
}

// stream replays the log one line at a time, calling each (if set) after
// every line with the header the line belongs to. It returns the replayer
// and the header scope still open at the end of the file. A missing log is
// an empty log when allowMissing is set.
func (a *app) stream(allowMissing bool, each func(scope, l *journal.Line, st *journal.State) error) (*journal.Replayer, *journal.Line, error) {
	rep := journal.NewReplayer(a.conf.ReplayOptions())

	f, err := os.Open(a.conf.LogFile)
	if allowMissing && errors.Is(err, fs.ErrNotExist) {
		return rep, nil, nil
	} else if err != nil {
		return nil, nil, fmt.Errorf("open log %q: %w", a.conf.LogFile, err)
	}
	defer f.Close()

	r := journal.NewReader(f, a.conf.ReaderOptions())
	for line, err := range r.All() {
		if err != nil {
			return nil, nil, err
		}
		var scope *journal.Line
		if line.Depth > 0 {
			scope = r.Scope()
		}
		if err := rep.Apply(scope, line); err != nil {
			return nil, nil, err
		}
		if each != nil {
			if err := each(scope, line, rep.State()); err != nil {
				return nil, nil, err
			}
		}
	}
	return rep, r.Scope(), nil
}
