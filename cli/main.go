package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/sync/errgroup"

	"github.com/ankit-chaubey/image-metadata-surgery/core"
	"github.com/ankit-chaubey/image-metadata-surgery/core/container"
	"github.com/ankit-chaubey/image-metadata-surgery/core/exif"
	"github.com/ankit-chaubey/image-metadata-surgery/core/image"
)

const usage = `Usage: surgery <command> [flags] <file>...

Commands:
  view        print every metadata family
  modify      set or delete keyed entries (-set K=V, -delete K, -table file.yaml)
  clear       remove whole families (-family exif,iptc,xmp,comment,icc,thumbnail)
  comment     print or replace the comment (-set text, -delete)
  icc         export, import or delete the ICC profile
  thumbnail   export, import or erase the EXIF thumbnail
  mime        print the MIME type
  access      print per-family access modes
  verify      cross-check EXIF decoding against goexif
  version     print the version

Common flags:
  -config file   YAML config (encoding, log_level, json, workers)
  -encoding name text encoding for metadata values (default utf-8)
  -json          JSON output
  -v             verbose output
  -log-level n   0 debug .. 4 mute
`

// multiFlag collects a repeatable string flag.
type multiFlag []string

func (m *multiFlag) String() string     { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error { *m = append(*m, v); return nil }

// env is what every command receives after flag parsing.
type env struct {
	cfg     Config
	printer *core.Printer
	files   []string
}

type command struct {
	flags func(fs *flag.FlagSet)
	// run handles one file. Output goes to w so files processed in
	// parallel print in argument order.
	run func(e *env, w io.Writer, path string) error
	// single commands take exactly one file.
	single bool
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	os.Exit(run(os.Args[1], os.Args[2:], os.Stdout))
}

func run(name string, args []string, stdout io.Writer) int {
	if name == "version" || name == "-version" || name == "--version" {
		fmt.Fprintln(stdout, "surgery "+core.Version)
		return 0
	}
	cmd, ok := commands()[name]
	if !ok {
		if name != "help" && name != "-h" && name != "--help" {
			core.PrintError(fmt.Sprintf("unknown command %q", name))
		}
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	encoding := fs.String("encoding", "", "text encoding for metadata values")
	jsonOut := fs.Bool("json", false, "JSON output")
	verbose := fs.Bool("v", false, "verbose output")
	logLevel := fs.Int("log-level", -1, "0 debug, 1 info, 2 warn, 3 error, 4 mute")
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		core.PrintError(err.Error())
		return 1
	}
	if *encoding != "" {
		cfg.Encoding = *encoding
	}
	if *jsonOut {
		cfg.JSON = true
	}
	if *logLevel >= 0 {
		cfg.LogLevel = logLevel
	}
	cfg.apply()

	e := &env{cfg: cfg, printer: core.NewPrinter(cfg.JSON, *verbose), files: unique(fs.Args())}
	switch {
	case len(e.files) == 0:
		core.PrintError(name + " needs at least one file")
		return 2
	case cmd.single && len(e.files) != 1:
		core.PrintError(name + " takes exactly one file")
		return 2
	}
	return fanOut(e, cmd, stdout)
}

// unique drops repeated paths, keeping the first spelling of each file.
func unique(paths []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range paths {
		key := p
		if abs, err := filepath.Abs(p); err == nil {
			key = abs
		}
		if real, err := filepath.EvalSymlinks(key); err == nil {
			key = real
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// fanOut runs cmd over every file with at most cfg.Workers in flight.
// Each file gets its own handle; a failure on one file does not stop
// the others.
func fanOut(e *env, cmd command, stdout io.Writer) int {
	outs := make([]bytes.Buffer, len(e.files))
	errs := make([]error, len(e.files))

	var g errgroup.Group
	g.SetLimit(max(e.cfg.Workers, 1))
	for i, path := range e.files {
		i, path := i, path
		g.Go(func() error {
			errs[i] = cmd.run(e, &outs[i], path)
			return nil
		})
	}
	g.Wait()

	code := 0
	for i := range e.files {
		stdout.Write(outs[i].Bytes())
		if errs[i] != nil {
			core.PrintError(fmt.Sprintf("%s: %v", e.files[i], errs[i]))
			code = 1
		}
	}
	return code
}

func (e *env) open(path string) (*image.Handle, error) {
	return image.Open(path, image.WithEncoding(e.cfg.Encoding))
}

// printerFor clones the shared printer onto w.
func (e *env) printerFor(w io.Writer) *core.Printer {
	p := *e.printer
	p.Writer = w
	return &p
}

func commands() map[string]command {
	var (
		sets, deletes multiFlag
		table         string
		modFamily     string
		families      string
		commentSet    string
		commentDelete bool
		exportPath    string
		importPath    string
		erase         bool
	)
	blobFlags := func(fs *flag.FlagSet) {
		fs.StringVar(&exportPath, "export", "", "write the blob to this file")
		fs.StringVar(&importPath, "import", "", "replace the blob with this file")
		fs.BoolVar(&erase, "delete", false, "remove the blob")
	}

	return map[string]command{
		"view": {run: runView},
		"modify": {
			flags: func(fs *flag.FlagSet) {
				fs.Var(&sets, "set", "Key=Value (repeatable)")
				fs.Var(&deletes, "delete", "Key (repeatable)")
				fs.StringVar(&table, "table", "", "YAML mutation table")
				fs.StringVar(&modFamily, "family", "", "only touch this family (exif, iptc or xmp)")
			},
			run: func(e *env, w io.Writer, path string) error {
				return runModify(e, w, path, modFamily, sets, deletes, table)
			},
		},
		"clear": {
			flags: func(fs *flag.FlagSet) {
				fs.StringVar(&families, "family", "exif,iptc,xmp,comment,icc,thumbnail", "comma-separated families")
			},
			run: func(e *env, w io.Writer, path string) error {
				return runClear(e, w, path, families)
			},
		},
		"comment": {
			flags: func(fs *flag.FlagSet) {
				fs.StringVar(&commentSet, "set", "", "replace the comment")
				fs.BoolVar(&commentDelete, "delete", false, "remove the comment")
			},
			run: func(e *env, w io.Writer, path string) error {
				return runComment(e, w, path, commentSet, commentDelete)
			},
		},
		"icc": {
			flags:  blobFlags,
			single: true,
			run: func(e *env, w io.Writer, path string) error {
				return runBlob(e, w, path, core.FamilyIcc, exportPath, importPath, erase)
			},
		},
		"thumbnail": {
			flags:  blobFlags,
			single: true,
			run: func(e *env, w io.Writer, path string) error {
				return runBlob(e, w, path, core.FamilyThumbnail, exportPath, importPath, erase)
			},
		},
		"mime":   {run: runMime},
		"access": {run: runAccess},
		"verify": {run: runVerify},
	}
}

// ─── Commands ────────────────────────────────────────────────────────────────

func runView(e *env, w io.Writer, path string) error {
	h, err := e.open(path)
	if err != nil {
		return err
	}
	defer h.Close()
	fields, err := h.Fields()
	if err != nil {
		return err
	}
	e.printerFor(w).PrintMetadata(&core.Metadata{
		FilePath: path,
		Format:   image.New(h.Format()).Info().Name,
		Fields:   fields,
	})
	return nil
}

// keyedFamily parses the -family value of modify. Empty means any.
func keyedFamily(name string) (core.Family, bool, error) {
	if name == "" {
		return 0, false, nil
	}
	f, err := core.ParseFamily(name)
	if err != nil {
		return 0, false, err
	}
	if f != core.FamilyExif && f != core.FamilyIptc && f != core.FamilyXmp {
		return 0, false, fmt.Errorf("-family %s: modify only edits exif, iptc or xmp", name)
	}
	return f, true, nil
}

func runModify(e *env, w io.Writer, path, family string, sets, deletes []string, tablePath string) error {
	only, restricted, err := keyedFamily(family)
	if err != nil {
		return err
	}
	familyOf := func(k string) (core.Family, error) {
		f, err := image.FamilyOfKey(k)
		if err != nil {
			return 0, err
		}
		if restricted && f != only {
			return 0, fmt.Errorf("key %q is not in family %s", k, only)
		}
		return f, nil
	}

	tables := map[core.Family][]core.Mutation{}
	if tablePath != "" {
		t, err := loadTable(tablePath)
		if err != nil {
			return err
		}
		for f := range t {
			if restricted && f != only {
				return fmt.Errorf("%s: table edits %s, not %s", tablePath, f, only)
			}
		}
		tables = t
	}
	for _, s := range sets {
		k, v, ok := core.ParseKV(s)
		if !ok {
			return fmt.Errorf("-set %q: want Key=Value", s)
		}
		f, err := familyOf(k)
		if err != nil {
			return err
		}
		tables[f] = append(tables[f], core.Mutation{Key: k, Value: v, Type: core.TypeString})
	}
	for _, k := range deletes {
		f, err := familyOf(k)
		if err != nil {
			return err
		}
		tables[f] = append(tables[f], core.Mutation{Key: k, Type: core.TypeDelete})
	}
	if len(tables) == 0 {
		return errors.New("nothing to modify: pass -set, -delete or -table")
	}

	h, err := e.open(path)
	if err != nil {
		return err
	}
	defer h.Close()
	c := core.NewCollector("modify")
	for _, f := range core.Families {
		if t, ok := tables[f]; ok {
			c.Add(h.Modify(f, t))
		}
	}
	if err := c.Err(); err != nil {
		return err
	}
	if err := h.Save(); err != nil {
		return err
	}
	e.printerFor(w).PrintSuccess(fmt.Sprintf("%s: %d families written", path, len(tables)))
	return nil
}

func runClear(e *env, w io.Writer, path, list string) error {
	var fams []core.Family
	for _, name := range strings.Split(list, ",") {
		f, err := core.ParseFamily(strings.TrimSpace(name))
		if err != nil {
			return err
		}
		fams = append(fams, f)
	}
	h, err := e.open(path)
	if err != nil {
		return err
	}
	defer h.Close()
	access := h.AccessModes()
	for _, f := range fams {
		// Families the format cannot carry are already absent.
		if access[f] == core.AccessNone {
			continue
		}
		if err := h.Clear(f); err != nil {
			return err
		}
	}
	if err := h.Save(); err != nil {
		return err
	}
	e.printerFor(w).PrintSuccess(path + ": cleared " + list)
	return nil
}

func runComment(e *env, w io.Writer, path, text string, del bool) error {
	h, err := e.open(path)
	if err != nil {
		return err
	}
	defer h.Close()
	p := e.printerFor(w)
	if text == "" && !del {
		c, err := h.ReadComment()
		if err != nil {
			return err
		}
		if p.JSON {
			p.PrintJSON(map[string]string{"file": path, "comment": c})
		} else {
			fmt.Fprintln(w, c)
		}
		return nil
	}
	if err := h.ModifyComment(text); err != nil {
		return err
	}
	if err := h.Save(); err != nil {
		return err
	}
	p.PrintSuccess(path + ": comment updated")
	return nil
}

func runBlob(e *env, w io.Writer, path string, f core.Family, exportPath, importPath string, del bool) error {
	h, err := e.open(path)
	if err != nil {
		return err
	}
	defer h.Close()
	p := e.printerFor(w)

	read, modify := h.ReadICC, h.ModifyICC
	if f == core.FamilyThumbnail {
		read, modify = h.ReadThumbnail, h.ModifyThumbnail
	}
	switch {
	case exportPath != "":
		b, err := read()
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("%s has no %s", path, f)
		}
		if err := os.WriteFile(exportPath, b, 0o644); err != nil {
			return core.Wrap(core.IOError, "export", err)
		}
		p.PrintSuccess(fmt.Sprintf("%s: %d bytes of %s written to %s", path, len(b), f, exportPath))
		return nil
	case importPath != "":
		b, err := os.ReadFile(importPath)
		if err != nil {
			return core.Wrap(core.IOError, "import", err)
		}
		if err := modify(b); err != nil {
			return err
		}
	case del:
		if err := h.Clear(f); err != nil {
			return err
		}
	default:
		b, err := read()
		if err != nil {
			return err
		}
		p.PrintTable([][2]string{{f.String(), fmt.Sprintf("%d bytes", len(b))}})
		return nil
	}
	if err := h.Save(); err != nil {
		return err
	}
	p.PrintSuccess(fmt.Sprintf("%s: %s updated", path, f))
	return nil
}

func runMime(e *env, w io.Writer, path string) error {
	id, err := core.DetectFormat(path)
	if err != nil {
		return err
	}
	p := e.printerFor(w)
	if p.JSON {
		p.PrintJSON(map[string]string{"file": path, "mime": core.MIMEType(id)})
		return nil
	}
	fmt.Fprintf(w, "%s: %s\n", path, core.MIMEType(id))
	return nil
}

func runAccess(e *env, w io.Writer, path string) error {
	h, err := e.open(path)
	if err != nil {
		return err
	}
	defer h.Close()
	modes := h.AccessModes()
	p := e.printerFor(w)
	if p.JSON {
		out := map[string]string{}
		for f, m := range modes {
			out[f.String()] = m.String()
		}
		p.PrintJSON(map[string]any{"file": path, "access": out})
		return nil
	}
	fams := maps.Keys(modes)
	sort.Slice(fams, func(i, j int) bool { return fams[i] < fams[j] })
	rows := make([][2]string, 0, len(fams))
	for _, f := range fams {
		rows = append(rows, [2]string{f.String(), modes[f].String()})
	}
	fmt.Fprintln(w, path)
	p.PrintTable(rows)
	return nil
}

func runVerify(e *env, w io.Writer, path string) error {
	h, err := e.open(path)
	if err != nil {
		return err
	}
	defer h.Close()
	blob := container.Payload(h.Segments(), core.FamilyExif)
	p := e.printerFor(w)
	if blob == nil {
		p.PrintInfo(path + ": no EXIF")
		return nil
	}
	diffs, err := exif.CrossCheck(blob)
	if err != nil {
		return err
	}
	if p.JSON {
		p.PrintJSON(map[string]any{"file": path, "differences": diffs})
		return nil
	}
	if len(diffs) == 0 {
		p.PrintSuccess(path + ": EXIF decoders agree")
		return nil
	}
	fmt.Fprintf(w, "%s: %d differences\n", path, len(diffs))
	for _, d := range diffs {
		fmt.Fprintln(w, "  "+d)
	}
	return fmt.Errorf("%d EXIF fields differ from goexif", len(diffs))
}
