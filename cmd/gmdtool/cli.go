package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"gmd"
	"gmd/internal/config"
	"gmd/internal/dump"
)

// cfg is loaded by the Before hook of every invocation.
var cfg *config.Config

func newApp() *cli.App {
	app := &cli.App{
		Name:      "gmdtool",
		Usage:     "inspect, convert and translate GMD text archives",
		ArgsUsage: "[file.gmd]",
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:  "config",
				Usage: "configuration file, created with defaults when missing",
				Value: defaultConfigPath(),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "print codec diagnostics",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "print errors only",
			},
		},
		Before: loadConfig,
		// A bare file argument keeps the original behaviour of writing a
		// re-encoded backup next to it.
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.ShowAppHelp(c)
			}
			return backupFile(c.Args().First())
		},
	}

	app.Commands = []*cli.Command{
		&cmdBackup,
		&cmdInfo,
		&cmdConvert,
		&cmdExport,
		&cmdImport,
	}
	return app
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "gmdtool.json"
	}
	return filepath.Join(dir, "gmdtool", "config.json")
}

func loadConfig(c *cli.Context) error {
	IsQuietMode = c.Bool("quiet")
	if IsQuietMode {
		log.SetOutput(io.Discard)
	} else {
		log.SetOutput(os.Stderr)
	}

	m := config.NewManager(c.Path("config"))
	if err := m.Load(); err != nil {
		return err
	}
	cfg = m.GetConfig()

	IsVerboseMode = !IsQuietMode && (c.Bool("verbose") || cfg.Verbose)
	if IsVerboseMode {
		gmd.Debugf = DebugPrintf
	} else {
		gmd.Debugf = func(string, ...any) {}
	}
	return nil
}

// -------------------- shared flags --------------------

func targetFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "to", Usage: "output version (v1, v2); defaults to the config, then the source"},
		&cli.StringFlag{Name: "platform", Usage: "output platform (ctr, wiiu, mobile)"},
		&cli.StringFlag{Name: "game", Usage: "output title (dd, soj, dgs1, dgs2)"},
	}
}

// resolveTarget layers command flags over the configuration. src is used
// when neither names a version.
func resolveTarget(c *cli.Context, src gmd.Version) (gmd.Version, gmd.Platform, gmd.Game, error) {
	t, err := cfg.Resolve()
	if err != nil {
		return 0, 0, 0, err
	}
	if t.Version == 0 {
		t.Version = src
	}
	if c.IsSet("to") {
		if t.Version, err = gmd.ParseVersion(c.String("to")); err != nil {
			return 0, 0, 0, err
		}
	}
	if c.IsSet("platform") {
		if t.Platform, err = gmd.ParsePlatform(c.String("platform")); err != nil {
			return 0, 0, 0, err
		}
	}
	if c.IsSet("game") {
		if t.Game, err = gmd.ParseGame(c.String("game")); err != nil {
			return 0, 0, 0, err
		}
	}
	return t.Version, t.Platform, t.Game, nil
}

func requireFile(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("%s: expected exactly one input file", c.Command.Name)
	}
	return c.Args().First(), nil
}

// loadArchive identifies path before decoding it and reports the two
// identification failures with the messages users of the tool know.
func loadArchive(path string) (*gmd.Archive, gmd.Version, error) {
	if _, err := gmd.Identify(path); err != nil {
		switch {
		case errors.Is(err, gmd.ErrNotFound):
			return nil, 0, fmt.Errorf("File %s was not found!", path)
		case errors.Is(err, gmd.ErrNotSupported):
			return nil, 0, errors.New("Provided GMD is not supported!")
		}
		return nil, 0, err
	}
	return gmd.LoadFile(path)
}

// -------------------- commands --------------------

var cmdBackup = cli.Command{
	Name:      "backup",
	Usage:     "re-encode a file to <file><backup_suffix> with the configured target",
	ArgsUsage: "<file.gmd>",
	Action: func(c *cli.Context) error {
		path, err := requireFile(c)
		if err != nil {
			return err
		}
		return backupFile(path)
	},
}

func backupFile(path string) error {
	a, v, err := loadArchive(path)
	if err != nil {
		return err
	}
	t, err := cfg.Resolve()
	if err != nil {
		return err
	}
	if t.Version != 0 {
		v = t.Version
	}
	out := path + cfg.BackupSuffix
	if err := gmd.SaveFile(out, a, v, t.Platform, t.Game); err != nil {
		return err
	}
	ResultPrintf("Saved %s (%s, %s, %s)\n", out, v, t.Platform, t.Game)
	return nil
}

var cmdInfo = cli.Command{
	Name:      "info",
	Usage:     "print the header of a file",
	ArgsUsage: "<file.gmd>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "entries", Usage: "also list every entry"},
	},
	Action: infoFile,
}

func infoFile(c *cli.Context) error {
	path, err := requireFile(c)
	if err != nil {
		return err
	}
	if _, err := gmd.Identify(path); err != nil {
		if errors.Is(err, gmd.ErrNotFound) {
			return fmt.Errorf("File %s was not found!", path)
		}
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	info, err := gmd.Sniff(data)
	if err != nil {
		return err
	}

	ResultPrintf("File:      %s (%d bytes)\n", path, info.Size)
	ResultPrintf("Version:   %s\n", info.Version)
	if info.Version == gmd.V2 {
		ResultPrintf("Layout:    %s\n", info.Layout)
	}
	ResultPrintf("Name:      %s\n", info.Name)
	ResultPrintf("Language:  %s\n", info.Language)
	ResultPrintf("Sections:  %d (%d labeled)\n", info.SectionCount, info.LabelCount)
	ResultPrintf("Blobs:     labels %d bytes, text %d bytes\n", info.LabelBlobSize, info.TextBlobSize)

	if !c.Bool("entries") {
		return nil
	}
	a, _, err := gmd.Decode(data)
	if err != nil {
		return err
	}
	for i, e := range a.Entries {
		ResultPrintf("%5d  %-24s %q\n", i, e.Label, e.Text)
	}
	return nil
}

var cmdConvert = cli.Command{
	Name:      "convert",
	Usage:     "re-encode a file for another version, platform or title",
	ArgsUsage: "<file.gmd>",
	Flags: append(targetFlags(),
		&cli.PathFlag{Name: "out", Aliases: []string{"o"}, Required: true, Usage: "output file"},
	),
	Action: func(c *cli.Context) error {
		path, err := requireFile(c)
		if err != nil {
			return err
		}
		a, src, err := loadArchive(path)
		if err != nil {
			return err
		}
		v, p, g, err := resolveTarget(c, src)
		if err != nil {
			return err
		}
		out := c.Path("out")
		if err := gmd.SaveFile(out, a, v, p, g); err != nil {
			return err
		}
		ResultPrintf("Converted %s (%s) -> %s (%s, %s, %s)\n", path, src, out, v, p, g)
		return nil
	},
}

var cmdExport = cli.Command{
	Name:      "export",
	Usage:     "write the entries of a file as a translation dump",
	ArgsUsage: "<file.gmd>",
	Flags: []cli.Flag{
		&cli.PathFlag{Name: "out", Aliases: []string{"o"}, Usage: "dump file, named after the input by default"},
		&cli.StringFlag{Name: "format", Usage: "json or cbor"},
		&cli.StringFlag{Name: "compression", Usage: "none, lz4 or zstd"},
	},
	Action: exportFile,
}

func exportFile(c *cli.Context) error {
	path, err := requireFile(c)
	if err != nil {
		return err
	}
	opts, err := cfg.DumpOptions()
	if err != nil {
		return err
	}
	if c.IsSet("format") {
		if opts.Format, err = dump.ParseFormat(c.String("format")); err != nil {
			return err
		}
	}
	if c.IsSet("compression") {
		if opts.Compression, err = dump.ParseCompression(c.String("compression")); err != nil {
			return err
		}
	}

	a, v, err := loadArchive(path)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := dump.Export(&buf, a, v, opts); err != nil {
		return err
	}

	out := c.Path("out")
	if out == "" {
		out = dumpPath(path, opts)
	}
	if err := os.WriteFile(out, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write dump: %w", err)
	}
	InfoPrintf("Exported %d entries from %s\n", len(a.Entries), path)
	ResultPrintf("Saved %s\n", out)
	return nil
}

func dumpPath(in string, opts dump.Options) string {
	out := in + "." + string(opts.Format)
	switch opts.Compression {
	case dump.CompressionLz4:
		out += ".lz4"
	case dump.CompressionZstd:
		out += ".zst"
	}
	return out
}

var cmdImport = cli.Command{
	Name:      "import",
	Usage:     "build a GMD file from a translation dump",
	ArgsUsage: "<dump>",
	Flags: append(targetFlags(),
		&cli.PathFlag{Name: "out", Aliases: []string{"o"}, Required: true, Usage: "output file"},
	),
	Action: func(c *cli.Context) error {
		path, err := requireFile(c)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("File %s was not found!", path)
		}
		defer f.Close()

		a, src, err := dump.Import(f)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		v, p, g, err := resolveTarget(c, src)
		if err != nil {
			return err
		}
		out := c.Path("out")
		if err := gmd.SaveFile(out, a, v, p, g); err != nil {
			return err
		}
		ResultPrintf("Imported %d entries -> %s (%s, %s, %s)\n", len(a.Entries), out, v, p, g)
		return nil
	},
}
