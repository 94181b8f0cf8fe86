package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/specialistvlad/observedseq/internal/app"
)

// EnvPrefix prefixes every environment variable the parser reads.
const EnvPrefix = "OBSEQ"

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("observedseq", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
observedseq - follow a SQLite query through a lazily mapped pipeline.

Usage:
  observedseq [options] [CONFIG_PATH]

Arguments:
  CONFIG_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Modes:
  serve   HTTP and socket.io server (default)
  view    terminal list over the local database
  watch   terminal list mirroring a remote server (-url)

Every option can also be set as OBSEQ_<NAME>, e.g. OBSEQ_LOG_LEVEL=debug.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to the pipeline file or directory.")
	cFlag := flagSet.String("c", "", "Path to the pipeline file or directory (shorthand).")
	dbFlag := flagSet.String("db", "observedseq.db", "Path to the SQLite database.")
	listenFlag := flagSet.String("listen", "", "HTTP listen address. Overrides the server block.")
	modeFlag := flagSet.String("mode", app.ModeServe, "Run mode. Options: 'serve', 'view' or 'watch'.")
	urlFlag := flagSet.String("url", "", "Server to mirror in watch mode.")
	refreshFlag := flagSet.Duration("refresh", 0, "Refetch interval for writes made by other processes. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	explicit := make(map[string]bool)
	flagSet.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	value := func(name, flagValue string) string {
		if explicit[name] {
			return flagValue
		}
		v.SetDefault(name, flagValue)
		return v.GetString(name)
	}

	path := ""
	switch {
	case *configFlag != "":
		path = *configFlag
	case *cFlag != "":
		path = *cFlag
	case flagSet.NArg() > 0:
		path = flagSet.Arg(0)
	default:
		path = value("config", "")
	}
	slog.Debug("Config path determined.", "path", path)

	mode := strings.ToLower(value("mode", *modeFlag))
	if path == "" && mode != app.ModeWatch {
		slog.Debug("No config path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	refresh := *refreshFlag
	if !explicit["refresh"] {
		v.SetDefault("refresh", refresh)
		refresh = v.GetDuration("refresh")
	}

	logFormat := strings.ToLower(value("log-format", *logFormatFlag))
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(value("log-level", *logLevelFlag))
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ConfigPath: path,
		DBPath:     value("db", *dbFlag),
		Listen:     value("listen", *listenFlag),
		Mode:       mode,
		URL:        value("url", *urlFlag),
		Refresh:    refresh,
		LogFormat:  logFormat,
		LogLevel:   logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
