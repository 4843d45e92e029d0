// Command systrace runs a program with every syscall of it and its
// descendants intercepted under ptrace.
//
//	systrace [--config FILE] [--verbose] run -- prog args...
//	systrace record --profile FILE -- prog args...
//	systrace replay --profile FILE -- prog args...
//	systrace filter
//	systrace syscalls [--compat]
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/criyle/go-systrace/config"
)

type command struct {
	name  string
	usage string
	run   func(e *env, args []string) (int, error)
}

var commands = []command{
	{"run", "trace a program with the configured policy", runCmd},
	{"record", "permit every syscall and record them into a profile", recordCmd},
	{"replay", "permit only the syscalls recorded in a profile", replayCmd},
	{"filter", "print the seccomp prefilter of the deny rules", filterCmd},
	{"syscalls", "list the syscall names of the syscall table", syscallsCmd},
}

// env is shared by every command
type env struct {
	config *config.Config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func main() {
	code, err := run(os.Args[1:], os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string, stdout, stderr io.Writer) (int, error) {
	var (
		configPath string
		verbose    bool
	)
	flagSet := pflag.NewFlagSet("systrace", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	flagSet.Usage = func() { printUsage(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0, nil
		}
		return exitUsage, err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(stderr, flagSet)
		return exitUsage, nil
	}

	cfg := config.Default()
	if configPath != "" {
		c, err := config.Load(configPath)
		if err != nil {
			return exitUsage, err
		}
		cfg = c
	}
	logger, closer, err := cfg.Log.NewLogger(verbose, stderr)
	if err != nil {
		return exitUsage, err
	}
	defer closer.Close()

	e := &env{config: cfg, logger: logger, stdout: stdout, stderr: stderr}
	for _, c := range commands {
		if c.name == rest[0] {
			return c.run(e, rest[1:])
		}
	}
	printUsage(stderr, flagSet)
	return exitUsage, fmt.Errorf("unknown command %q", rest[0])
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: systrace [options] <command> [command options] [-- prog args...]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(w, "\nOptions:\n%s", flagSet.FlagUsages())
}

// subcommand flag set, program arguments follow the flags
func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("systrace "+name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SetInterspersed(false)
	return fs
}

func parseProgram(fs *pflag.FlagSet, args []string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	prog := fs.Args()
	if len(prog) == 0 {
		return nil, errors.New("no program given")
	}
	return prog, nil
}
