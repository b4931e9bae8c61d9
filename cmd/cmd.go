package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/rubiojr/rpp/config"
	"github.com/rubiojr/rpp/diag"
	"github.com/rubiojr/rpp/macro"
	"github.com/rubiojr/rpp/pp"
)

// Exit statuses.
const (
	exitOK      = 0
	exitErrors  = 1
	exitAborted = 2
)

// exitError carries a status out of an action without printing anything
// more; the diagnostics were already reported.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func statusOf(res *pp.Result) error {
	switch {
	case res.Aborted:
		return &exitError{exitAborted}
	case res.Errors > 0:
		return &exitError{exitErrors}
	}
	return nil
}

// Execute runs the rpp CLI with the given version string.
func Execute(version string) {
	os.Exit(run(context.Background(), version, os.Args, os.Stdout, os.Stderr))
}

func run(ctx context.Context, version string, args []string, stdout, stderr io.Writer) int {
	cmd := newCommand(version, stdout, stderr)
	err := cmd.Run(ctx, args)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitErrors
}

func newCommand(version string, stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "rpp",
		Usage:     "Run the directives of a C-style preprocessor over a file",
		Version:   version,
		Writer:    stdout,
		ErrWriter: stderr,
		ArgsUsage: "<file>",
		// Root flags are inherited by the subcommands.
		Flags: append(commonFlags(), outputFlag()),
		// `rpp file.c` is shorthand for `rpp process file.c`.
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() == 0 {
				return cli.DefaultShowRootCommandHelp(cmd)
			}
			return processAction(ctx, cmd, stdout, stderr)
		},
		Commands: []*cli.Command{
			{
				Name:      "process",
				Usage:     "Write the compiled lines of a file",
				ArgsUsage: "<file>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return processAction(ctx, cmd, stdout, stderr)
				},
			},
			{
				Name:      "macros",
				Usage:     "Print the macros defined after processing a file",
				ArgsUsage: "[file]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format: define or yaml",
						Value: "define",
					},
					&cli.BoolFlag{
						Name:    "all",
						Aliases: []string{"a"},
						Usage:   "Include predefined and protected macros",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return macrosAction(ctx, cmd, stdout, stderr)
				},
			},
			{
				Name:      "check",
				Usage:     "Report diagnostics for files without writing output",
				ArgsUsage: "<file | directory>...",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "jobs",
						Aliases: []string{"j"},
						Usage:   "Files checked in parallel",
						Value:   1,
					},
					&cli.StringSliceFlag{
						Name:  "ext",
						Usage: "File extensions collected from directories",
						Value: []string{".c", ".h", ".rpp"},
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return checkAction(ctx, cmd, stdout, stderr)
				},
			},
		},
	}
}

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "Write to this file instead of stdout",
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "define",
			Aliases: []string{"D"},
			Usage:   "Define a macro: NAME, NAME=VALUE or F(x)=BODY",
		},
		&cli.StringSliceFlag{
			Name:    "undefine",
			Aliases: []string{"U"},
			Usage:   "Remove a macro after the definitions",
		},
		&cli.StringSliceFlag{
			Name:    "include",
			Aliases: []string{"I"},
			Usage:   "Add a directory to the include path",
		},
		&cli.StringSliceFlag{
			Name:    "warn",
			Aliases: []string{"W"},
			Usage:   "Enable a warning class, or disable it with no-<class>",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "Load settings from a YAML file",
		},
		&cli.BoolFlag{
			Name:  "strict",
			Usage: "Hide extension macros and turn warnings about syntax into errors",
		},
		&cli.IntFlag{
			Name:  "max-depth",
			Usage: "Maximum #if nesting",
		},
		&cli.IntFlag{
			Name:  "max-params",
			Usage: "Maximum macro parameters",
		},
		&cli.IntFlag{
			Name:  "max-macros",
			Usage: "Number of macros after which a warning is given (0 disables it)",
		},
		&cli.BoolFlag{
			Name:  "line-markers",
			Usage: "Emit #line markers instead of blank lines",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Diagnostic format: plain, text or json",
			Value: "plain",
		},
		&cli.BoolFlag{
			Name:    "no-color",
			Aliases: []string{"C"},
			Usage:   "Disable ANSI color output",
		},
	}
}

// loadConfig builds the run configuration: the YAML file if given, then
// the command line on top.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg := config.Default()
	if path := cmd.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	cfg.Defines = append(cfg.Defines, cmd.StringSlice("define")...)
	cfg.Undefines = append(cfg.Undefines, cmd.StringSlice("undefine")...)
	cfg.IncludeDirs = append(cfg.IncludeDirs, cmd.StringSlice("include")...)
	if ws := cmd.StringSlice("warn"); len(ws) > 0 {
		names := append(strings.Split(cfg.Warnings.String(), "|"), ws...)
		mask, err := diag.ParseWarnings(names)
		if err != nil {
			return nil, err
		}
		cfg.Warnings = mask
	}
	if cmd.IsSet("strict") {
		cfg.Strict = cmd.Bool("strict")
	}
	if cmd.IsSet("line-markers") {
		cfg.LineMarkers = cmd.Bool("line-markers")
	}
	if cmd.IsSet("max-depth") {
		cfg.MaxDepth = cmd.Int("max-depth")
	}
	if cmd.IsSet("max-params") {
		cfg.MaxParams = cmd.Int("max-params")
	}
	if cmd.IsSet("max-macros") {
		cfg.MaxMacros = cmd.Int("max-macros")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newSink picks the diagnostic output. Color is used only on a terminal
// and never when NO_COLOR is set.
func newSink(cmd *cli.Command, stderr io.Writer) (diag.Sink, error) {
	switch format := cmd.String("log-format"); format {
	case "plain", "":
		color := false
		if f, ok := stderr.(*os.File); ok && !cmd.Bool("no-color") && os.Getenv("NO_COLOR") == "" {
			color = term.IsTerminal(int(f.Fd()))
		}
		return &diag.WriterSink{W: stderr, Color: color}, nil
	case "text", "json":
		logger := logrus.New()
		logger.SetOutput(stderr)
		if format == "json" {
			logger.SetFormatter(&logrus.JSONFormatter{})
		} else {
			logger.SetFormatter(&logrus.TextFormatter{DisableColors: cmd.Bool("no-color"), DisableTimestamp: true})
		}
		return &diag.LogSink{Logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// readInput reads a file, or stdin for "-".
func readInput(path string) (string, []byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return "<stdin>", data, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return path, data, nil
}

func newContext(cmd *cli.Command, sink diag.Sink) (*pp.Context, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return pp.New(cfg, sink)
}

func processAction(ctx context.Context, cmd *cli.Command, stdout, stderr io.Writer) error {
	if cmd.NArg() < 1 {
		return fmt.Errorf("usage: rpp process [-o output] <file>")
	}
	sink, err := newSink(cmd, stderr)
	if err != nil {
		return err
	}
	c, err := newContext(cmd, sink)
	if err != nil {
		return err
	}
	defer c.Close()
	name, src, err := readInput(cmd.Args().First())
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	res, err := c.Run(name, src, &buf)
	if err != nil {
		return err
	}
	if out := cmd.String("output"); out != "" {
		if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
	} else if _, err := stdout.Write(buf.Bytes()); err != nil {
		return err
	}
	return statusOf(res)
}

// macroEntry is the YAML form of a definition.
type macroEntry struct {
	Name      string   `yaml:"name"`
	Params    []string `yaml:"params,omitempty"`
	Function  bool     `yaml:"function,omitempty"`
	Body      string   `yaml:"body"`
	Kind      string   `yaml:"kind"`
	DefinedAt string   `yaml:"defined_at,omitempty"`
}

func macrosAction(ctx context.Context, cmd *cli.Command, stdout, stderr io.Writer) error {
	sink, err := newSink(cmd, stderr)
	if err != nil {
		return err
	}
	c, err := newContext(cmd, sink)
	if err != nil {
		return err
	}
	defer c.Close()

	res := &pp.Result{}
	if cmd.NArg() > 0 {
		name, src, err := readInput(cmd.Args().First())
		if err != nil {
			return err
		}
		if res, err = c.Run(name, src, io.Discard); err != nil {
			return err
		}
	}

	var defs []*macro.Definition
	for _, d := range c.Table.All() {
		if cmd.Bool("all") || d.Kind == macro.User {
			defs = append(defs, d)
		}
	}

	switch cmd.String("format") {
	case "yaml":
		entries := make([]macroEntry, 0, len(defs))
		for _, d := range defs {
			e := macroEntry{
				Name:     d.Name,
				Params:   d.Params,
				Function: d.FunctionLike,
				Body:     d.Replacement.Source(d.Params),
				Kind:     d.Kind.String(),
			}
			if d.DefinedAt.Filename != "" {
				e.DefinedAt = fmt.Sprintf("%s:%d", d.DefinedAt.Filename, d.DefinedAt.Line)
			}
			entries = append(entries, e)
		}
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	case "define":
		for _, d := range defs {
			fmt.Fprintf(stdout, "#define %s\n", d.Source())
		}
	default:
		return fmt.Errorf("unknown format %q", cmd.String("format"))
	}
	return statusOf(res)
}

// collectFiles expands directories into the files they hold with one of
// exts, keeping the order of the arguments.
func collectFiles(targets, exts []string) ([]string, error) {
	var files []string
	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", target, err)
		}
		if !info.IsDir() {
			files = append(files, target)
			continue
		}
		entries, err := os.ReadDir(target)
		if err != nil {
			return nil, fmt.Errorf("reading directory %s: %w", target, err)
		}
		for _, e := range entries {
			if !e.IsDir() && slices.Contains(exts, filepath.Ext(e.Name())) {
				files = append(files, filepath.Join(target, e.Name()))
			}
		}
	}
	return files, nil
}

func checkAction(ctx context.Context, cmd *cli.Command, stdout, stderr io.Writer) error {
	if cmd.NArg() < 1 {
		return fmt.Errorf("usage: rpp check [-j jobs] <file | directory>...")
	}
	files, err := collectFiles(cmd.Args().Slice(), cmd.StringSlice("ext"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files to check")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	jobs := cmd.Int("jobs")
	if jobs < 1 {
		jobs = 1
	}

	type fileResult struct {
		diags bytes.Buffer
		res   *pp.Result
		err   error
	}
	results := make([]fileResult, len(files))
	check := func(i int) {
		r := &results[i]
		sink, err := newSink(cmd, &r.diags)
		if err != nil {
			r.err = err
			return
		}
		// Every file gets its own context; a Context is not shared.
		fileCfg := *cfg
		c, err := pp.New(&fileCfg, sink)
		if err != nil {
			r.err = err
			return
		}
		defer c.Close()
		src, err := os.ReadFile(files[i])
		if err != nil {
			r.err = fmt.Errorf("reading %s: %w", files[i], err)
			return
		}
		r.res, r.err = c.Run(files[i], src, io.Discard)
	}

	work := make(chan int, len(files))
	for i := range files {
		work <- i
	}
	close(work)
	var wg sync.WaitGroup
	for range min(jobs, len(files)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				check(i)
			}
		}()
	}
	wg.Wait()

	status := exitOK
	totalErrors, totalWarnings := 0, 0
	for i, r := range results {
		stderr.Write(r.diags.Bytes())
		switch {
		case r.err != nil:
			fmt.Fprintf(stderr, "%s: %v\n", files[i], r.err)
			status = max(status, exitErrors)
		case r.res.Aborted:
			status = exitAborted
		case r.res.Errors > 0:
			status = max(status, exitErrors)
		}
		if r.res != nil {
			totalErrors += r.res.Errors
			totalWarnings += r.res.Warnings
		}
	}
	fmt.Fprintf(stdout, "%d files, %d errors, %d warnings\n", len(files), totalErrors, totalWarnings)
	if status != exitOK {
		return &exitError{status}
	}
	return nil
}
