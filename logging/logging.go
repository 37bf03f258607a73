package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the diagnostics file written inside Options.Dir.
const FileName = "clog.log"

type Options struct {
	Level string
	// Dir, when set, adds a rotating file sink in that directory.
	Dir string
	// NoColor forces plain console output. Colour is also off when the
	// console is not a terminal.
	NoColor bool
}

func CleanPath(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}

func levelColor(level zerolog.Level) string {
	switch level {
	case zerolog.TraceLevel:
		return "\033[36m" // Cyan
	case zerolog.DebugLevel:
		return "\033[34m" // Blue
	case zerolog.InfoLevel:
		return "\033[32m" // Green
	case zerolog.WarnLevel:
		return "\033[33m" // Yellow
	case zerolog.ErrorLevel:
		return "\033[31m" // Red
	case zerolog.FatalLevel:
		return "\033[35m" // Magenta
	case zerolog.PanicLevel:
		return "\033[41m\033[97m" // White on Red background
	default:
		return "\033[0m" // Reset
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// Init points the global logger at out, plus a rotating file when o.Dir is
// set. The returned closer releases the file sink.
func Init(out io.Writer, o Options) io.Closer {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	level, err := zerolog.ParseLevel(strings.ToLower(o.Level))
	if err != nil || o.Level == "" {
		level = zerolog.WarnLevel
	}

	noColor := o.NoColor || !isTerminal(out)
	consoleWriter := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
		NoColor:    noColor,
	}
	consoleWriter.FormatLevel = func(i interface{}) string {
		level, ok := i.(string)
		if !ok {
			return strings.ToUpper(fmt.Sprintf("%s", i))
		}
		if noColor {
			return strings.ToUpper(level)
		}
		lvl, _ := zerolog.ParseLevel(level)
		return levelColor(lvl) + strings.ToUpper(level) + "\033[0m"
	}

	var writer io.Writer = consoleWriter
	var closer io.Closer = nopCloser{}
	if o.Dir != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   CleanPath(filepath.Join(o.Dir, FileName)),
			MaxSize:    2, // MB
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   false,
		}
		writer = io.MultiWriter(consoleWriter, fileWriter)
		closer = fileWriter
	}

	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(writer).With().Timestamp().Logger()

	log.Debug().Str("level", level.String()).Str("dir", CleanPath(o.Dir)).Msg("Logger initialized")
	return closer
}

func SetLevel(levelStr string) {
	level, err := zerolog.ParseLevel(strings.ToLower(levelStr))
	if err != nil {
		log.Warn().Str("input", levelStr).Msg("Invalid log level, keeping previous")
		return
	}
	zerolog.SetGlobalLevel(level)
	log.Debug().Str("level", level.String()).Msg("Log level changed")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
