package conf

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v2"

	"github.com/pellux-network/clog/journal"
)

// DefaultPath is where the config is looked up when no path is given.
const DefaultPath = ".clog.yaml"

// Duplicate policies accepted in Conf.Duplicates.
const (
	DuplicatesOverwrite = "overwrite"
	DuplicatesReject    = "reject"
)

// Conf is the app config
type Conf struct {
	LogFile       string `yaml:"logfile" env:"CLOG_FILE"`
	MaxLineLength int    `yaml:"maxlinelength" env:"CLOG_MAX_LINE_LENGTH"`
	Delimiter     string `yaml:"delimiter" env:"CLOG_DELIMITER"`
	Duplicates    string `yaml:"duplicates" env:"CLOG_DUPLICATES"`
	LogLevel      string `yaml:"loglevel" env:"CLOG_LOG_LEVEL"`
	LogDir        string `yaml:"logdir" env:"CLOG_LOG_DIR"`
}

const defaultYAML = `# path of the log to read, relative to the working directory
logfile: log

# bytes of field text allowed per line, negative for no limit
maxlinelength: 50

# field delimiter, empty means whitespace
delimiter: ""

# what a repeated record does: overwrite or reject
duplicates: overwrite

# diagnostics: panic, fatal, error, warn, info, debug, trace
loglevel: warn

# when set, diagnostics are also written to rotating files in this directory
logdir: ""
`

// Default returns the built-in configuration.
func Default() Conf {
	return Conf{
		LogFile:       "log",
		MaxLineLength: journal.DefaultMaxLineLength,
		Duplicates:    DuplicatesOverwrite,
		LogLevel:      "warn",
	}
}

// Load reads the config at confPath on top of the defaults, then applies
// CLOG_* environment overrides. A missing file is not an error.
func Load(confPath string) (Conf, error) {
	c := Default()

	data, err := os.ReadFile(confPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Debug().Str("config", confPath).Msg("No config file, using defaults")
	case err != nil:
		return Conf{}, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.UnmarshalStrict(data, &c); err != nil {
			return Conf{}, fmt.Errorf("parse config %s: %w", confPath, err)
		}
		log.Debug().Str("config", confPath).Msg("Configuration loaded")
	}

	if err := env.Parse(&c); err != nil {
		return Conf{}, fmt.Errorf("parse env: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Conf{}, err
	}
	return c, nil
}

// WriteDefault writes the commented default config to confPath. It refuses
// to overwrite an existing file.
func WriteDefault(confPath string) error {
	if dir := filepath.Dir(confPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(confPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if _, err := f.WriteString(defaultYAML); err != nil {
		f.Close()
		return fmt.Errorf("write config: %w", err)
	}
	return f.Close()
}

func (c Conf) Validate() error {
	if strings.TrimSpace(c.LogFile) == "" {
		return errors.New("config: logfile must not be empty")
	}
	switch c.Duplicates {
	case DuplicatesOverwrite, DuplicatesReject:
	default:
		return fmt.Errorf("config: duplicates must be %q or %q, got %q", DuplicatesOverwrite, DuplicatesReject, c.Duplicates)
	}
	if strings.ContainsAny(c.Delimiter, "\r\n") {
		return errors.New("config: delimiter must not contain a line break")
	}
	return nil
}

// ReaderOptions returns the options the log reader and writer use.
func (c Conf) ReaderOptions() journal.Options {
	return journal.Options{MaxLineLength: c.MaxLineLength, Delimiter: c.Delimiter}
}

func (c Conf) ReplayOptions() journal.ReplayOptions {
	if c.Duplicates == DuplicatesReject {
		return journal.ReplayOptions{Duplicates: journal.RejectDuplicates}
	}
	return journal.ReplayOptions{Duplicates: journal.LastWriteWins}
}
