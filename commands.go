package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/pellux-network/clog/conf"
	"github.com/pellux-network/clog/journal"
	"github.com/pellux-network/clog/view"
)

var printer = message.NewPrinter(language.English)

func (a *app) listCmd() *cobra.Command {
	var output string
	var titles bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the replayed state",
		Long: `Print the replayed state, one entry per line:

  <key>\t<value>\t<value>...

Top-level entries come first, then each header scope in lexical order; keys
are sorted within a scope. --output json prints {"key": ["value", ...]}.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := a.load()
			if err != nil {
				return err
			}
			switch output {
			case "text":
				return view.Write(a.stdout, view.Render(st), titles)
			case "json":
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(st.Map())
			default:
				return fmt.Errorf("unknown output format %q, want text or json", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	cmd.Flags().BoolVar(&titles, "titles", false, "print a [scope] title with its columns before each scope")
	return cmd
}

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Read and replay the log, reporting the first problem",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, st, err := a.load()
			if err != nil {
				return err
			}
			printer.Fprintf(a.stdout, "ok: %d lines, %d headers, %d keys\n", m.Len(), m.Headers(), st.Len())
			return nil
		},
	}
}

func (a *app) traceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trace",
		Short: "Replay the log line by line, printing the entry each line produces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := a.stream(false, func(scope, l *journal.Line, st *journal.State) error {
				text, err := journal.EncodeLine(l, a.conf.ReaderOptions())
				if err != nil {
					text = string(rune(l.Type)) + " " + l.Fields.Join(" ")
				}
				if l.Type == journal.Header {
					_, err = fmt.Fprintf(a.stdout, "%d\t%s\n", l.Number, text)
					return err
				}
				var prefix string
				if scope != nil {
					prefix = scope.Key()
				}
				key := journal.CompositeKey(prefix, l.Key())
				values, _ := st.Get(key)
				_, err = fmt.Fprintf(a.stdout, "%d\t%s\t%s = [%s]\n", l.Number, text, key, values.Join(" "))
				return err
			})
			return err
		},
	}
}

func parseRecordType(word string) (journal.RecordType, error) {
	switch strings.ToLower(word) {
	case "header", "!":
		return journal.Header, nil
	case "record", "*":
		return journal.Record, nil
	case "update", "$":
		return journal.Update, nil
	}
	return 0, fmt.Errorf("unknown line type %q, want header, record, update or end", word)
}

func (a *app) appendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "append (header|record|update) <key> [values...] | append end",
		Short: "Validate and append one line to the log",
		Long: `Append one line to the log. The line joins the header scope that is open at
the end of the file; "append end" closes it with a blank line. The log is
replayed first and the line is only written if it replays cleanly.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.EqualFold(args[0], "end") {
				if len(args) > 1 {
					return fmt.Errorf("end takes no arguments")
				}
				return journal.AppendFile(a.conf.LogFile, a.conf.ReaderOptions(), true)
			}
			typ, err := parseRecordType(args[0])
			if err != nil {
				return err
			}
			if len(args) < 2 {
				return fmt.Errorf("%s needs a key", typ)
			}
			line := journal.NewLine(typ, args[1:]...)

			rep, scope, err := a.stream(true, nil)
			if err != nil {
				return err
			}
			if typ == journal.Header {
				scope = nil
			}
			if err := rep.Apply(scope, line); err != nil {
				return err
			}

			if err := journal.AppendFile(a.conf.LogFile, a.conf.ReaderOptions(), false, line); err != nil {
				return err
			}
			log.Info().Str("log", a.conf.LogFile).Str("type", typ.String()).Str("key", line.Key()).Msg("Line appended")
			return nil
		},
	}
}

func (a *app) compactCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Rewrite the log as one record per key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, st, err := a.load()
			if err != nil {
				return err
			}
			if dryRun {
				return st.Encode(a.stdout, a.conf.ReaderOptions())
			}
			if err := a.replaceLog(st); err != nil {
				return err
			}
			printer.Fprintf(a.stdout, "compacted %d lines into %d keys\n", m.Len(), st.Len())
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the compacted log instead of writing it")
	return cmd
}

// replaceLog writes st next to the log and renames it over the original.
func (a *app) replaceLog(st *journal.State) error {
	path := a.conf.LogFile
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}

	var ok bool
	defer closeAndDeleteUnlessOK(f, &ok)

	if err := st.Encode(f, a.conf.ReaderOptions()); err != nil {
		return err
	}
	if err := f.Chmod(0o644); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return err
	}
	ok = true
	return nil
}

func closeAndDeleteUnlessOK(f *os.File, ok *bool) {
	if *ok {
		return
	}
	f.Close()
	os.Remove(f.Name())
}

func (a *app) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: `Append records from a JSON object of {"key": ["value", ...]}`,
		Long: `Append records from a JSON object of {"key": ["value", ...]}, the form
printed by "list --output json". A key "<scope>/<key>" is written under a
"! <scope>" header, other keys at the top level.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			lines, err := parseImport(data)
			if err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}
			blocks := groupImport(lines)

			rep, scope, err := a.stream(true, nil)
			if err != nil {
				return err
			}
			for _, b := range blocks {
				for _, l := range b.lines {
					if err := rep.Apply(b.header, l); err != nil {
						return fmt.Errorf("import %s: %w", args[0], err)
					}
				}
			}

			err = journal.AppendFunc(a.conf.LogFile, a.conf.ReaderOptions(), func(w *journal.Writer) error {
				if scope != nil && len(blocks) > 0 {
					if err := w.CloseScope(); err != nil {
						return err
					}
				}
				for _, b := range blocks {
					if err := b.write(w); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			printer.Fprintf(a.stdout, "imported %d records\n", len(lines))
			return nil
		},
	}
}

// importBlock is a run of imported records sharing a scope. header is nil
// for top-level records.
type importBlock struct {
	header *journal.Line
	lines  []*journal.Line
}

func (b importBlock) write(w *journal.Writer) error {
	if b.header != nil {
		if err := w.WriteLine(b.header); err != nil {
			return err
		}
	}
	for _, l := range b.lines {
		if err := w.WriteLine(l); err != nil {
			return err
		}
	}
	if b.header != nil {
		return w.CloseScope()
	}
	return nil
}

// groupImport splits composite keys back into scopes. Top-level records come
// first, then one block per scope in order of first appearance.
func groupImport(lines []*journal.Line) []importBlock {
	var root importBlock
	var scoped []importBlock
	index := make(map[string]int)
	for _, l := range lines {
		scope, key := journal.SplitKey(l.Key())
		rec := journal.NewLine(journal.Record, append([]string{key}, l.Values()...)...)
		if scope == "" {
			root.lines = append(root.lines, rec)
			continue
		}
		i, ok := index[scope]
		if !ok {
			i = len(scoped)
			index[scope] = i
			scoped = append(scoped, importBlock{header: journal.NewLine(journal.Header, scope)})
		}
		scoped[i].lines = append(scoped[i].lines, rec)
	}
	if len(root.lines) > 0 {
		return append([]importBlock{root}, scoped...)
	}
	return scoped
}

// parseImport turns {"key": ["v1", "v2"], ...} into record lines, keeping
// the order of the object.
func parseImport(data []byte) ([]*journal.Line, error) {
	var lines []*journal.Line
	err := jsonparser.ObjectEach(data, func(key, value []byte, dataType jsonparser.ValueType, offset int) error {
		if dataType != jsonparser.Array {
			return fmt.Errorf("%q: expected an array of strings, got %s", key, dataType)
		}
		fields := []string{string(key)}
		var elemErr error
		_, err := jsonparser.ArrayEach(value, func(v []byte, dt jsonparser.ValueType, _ int, err error) {
			if elemErr != nil {
				return
			}
			if err != nil {
				elemErr = err
				return
			}
			if dt != jsonparser.String {
				elemErr = fmt.Errorf("%q: value %s is not a string", key, v)
				return
			}
			s, err := jsonparser.ParseString(v)
			if err != nil {
				elemErr = err
				return
			}
			fields = append(fields, s)
		})
		if err != nil {
			return err
		}
		if elemErr != nil {
			return elemErr
		}
		lines = append(lines, journal.NewLine(journal.Record, fields...))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		// the config may not exist yet, so skip loading it
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.initLogging()
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.WriteDefault(a.confPath); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "wrote %s\n", a.confPath)
			return nil
		},
	}
}
