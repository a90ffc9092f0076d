package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/vk/sweeptrack/internal/app"
)

// ProgramName is used in usage text and in the logged command line.
const ProgramName = "sweeptrack"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) *ExitError {
	return &ExitError{Code: 2, Message: err.Error()}
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
// "ui" as the first argument selects the tracking server.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	if len(args) > 0 && args[0] == "ui" {
		return parseUI(args[1:], output)
	}
	return parseRun(args, output)
}

// commonFlags are shared by every mode.
type commonFlags struct {
	baseDir     *string
	backend     *string
	artifactURI *string
	logFormat   *string
	logLevel    *string
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		baseDir:     fs.String("base-dir", "", "Base directory for mlruns/ and outputs/. Defaults to $SWEEPTRACK_HOME, then the working directory."),
		backend:     fs.String("backend", "file", "Tracking backend layout under the base directory. Options: 'file' or 'sqlite'."),
		artifactURI: fs.String("artifact-uri", "", "Artifact root for new experiments. Defaults to file://<base>/mlruns."),
		logFormat:   fs.String("log-format", "text", "Log output format. Options: 'text' or 'json'."),
		logLevel:    fs.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'."),
	}
}

func parseRun(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet(ProgramName, flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
sweeptrack - Configurable, tracked training runs with multi-run sweeps.

Usage:
  sweeptrack [options] [OVERRIDE...]
  sweeptrack ui [options]

Overrides:
  key=value        Replace an existing config value (nested keys use dots).
  +key=value       Add a key the config does not have.
  ~key             Remove a key.
  key=a,b,c        Sweep over values (requires -m). Also range(1,5) and choice(a,b).
  group=option     Select <config-dir>/<group>/<option>.hcl.

Options:
`)
		flagSet.PrintDefaults()
	}

	common := addCommonFlags(flagSet)
	configDirFlag := flagSet.String("config-dir", "conf", "Directory holding the HCL configuration files.")
	configNameFlag := flagSet.String("config-name", "train", "Primary configuration file name, without the .hcl extension.")
	multirun := flagSet.Bool("multirun", false, "Run one job per combination of swept values.")
	flagSet.BoolVar(multirun, "m", false, "Run one job per combination of swept values (shorthand).")
	jobsFlag := flagSet.Int("jobs", 1, "Number of sweep jobs to run in parallel.")
	trackingURIFlag := flagSet.String("tracking-uri", "", "Tracking store URI. Overrides -backend (file://, sqlite:///, mysql://, memory://).")
	logDirFlag := flagSet.Bool("log-dir-artifacts", false, "Also log the whole output directory as artifacts after every epoch.")

	// Flags and overrides may be interleaved.
	var overrides []string
	rest := args
	for {
		if err := flagSet.Parse(rest); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return nil, true, nil
			}
			return nil, false, usageError(err)
		}
		rest = flagSet.Args()
		if len(rest) == 0 {
			break
		}
		overrides = append(overrides, rest[0])
		rest = rest[1:]
	}
	slog.Debug("Arguments parsed successfully.", "overrides", len(overrides))

	cfg, _, err := newConfig(common, app.Config{
		ConfigDir:       *configDirFlag,
		ConfigName:      *configNameFlag,
		Overrides:       overrides,
		Multirun:        *multirun,
		Jobs:            *jobsFlag,
		TrackingURI:     *trackingURIFlag,
		LogDirArtifacts: *logDirFlag,
		Argv:            append([]string{ProgramName}, args...),
	})
	if err != nil {
		return nil, false, err
	}
	slog.Debug("CLI parser finished successfully.", "config", cfg)
	return cfg, false, nil
}

func parseUI(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet(ProgramName+" ui", flag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.Usage = func() {
		fmt.Fprint(output, `
sweeptrack ui - Serve a read-only JSON API over a tracking store.

Usage:
  sweeptrack ui [options]

Options:
`)
		flagSet.PrintDefaults()
	}

	common := addCommonFlags(flagSet)
	storeURIFlag := flagSet.String("backend-store-uri", "", "Tracking store URI to serve. Defaults to the -backend layout under the base directory.")
	hostFlag := flagSet.String("host", "127.0.0.1", "Address to listen on.")
	portFlag := flagSet.Int("port", 5000, "Port to listen on.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, usageError(err)
	}
	if flagSet.NArg() > 0 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected argument %q", flagSet.Arg(0))}
	}
	if *portFlag <= 0 || *portFlag > 65535 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("invalid port %d", *portFlag)}
	}

	return newConfig(common, app.Config{
		UI:          true,
		TrackingURI: *storeURIFlag,
		UIAddr:      net.JoinHostPort(*hostFlag, strconv.Itoa(*portFlag)),
	})
}

// newConfig applies the shared flags and validates the result.
func newConfig(common commonFlags, cfg app.Config) (*app.Config, bool, error) {
	cfg.BaseDir = *common.baseDir
	cfg.Backend = strings.ToLower(*common.backend)
	cfg.ArtifactURI = *common.artifactURI
	cfg.LogFormat = strings.ToLower(*common.logFormat)
	cfg.LogLevel = strings.ToLower(*common.logLevel)

	config, err := app.NewConfig(cfg)
	if err != nil {
		return nil, false, usageError(err)
	}
	return config, false, nil
}
