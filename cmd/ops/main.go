// Command bossspawner-ops holds maintenance tasks for a spawner deployment:
// data directory backups, restore drills and config checks.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/invopop/jsonschema"

	"bossspawner/internal/config"
	"bossspawner/internal/ops"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(2)
	}

	cmds := map[string]func([]string, io.Writer) error{
		"backup":   cmdBackup,
		"restore":  cmdRestore,
		"drill":    cmdDrill,
		"schema":   cmdSchema,
		"validate": cmdValidate,
	}
	cmd, ok := cmds[os.Args[1]]
	if !ok {
		printUsage(os.Stderr)
		os.Exit(2)
	}
	if err := cmd(os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func cmdBackup(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	dataDir := fs.String("data-dir", "data", "path to data directory")
	archive := fs.String("out", "", "output archive path (.tar.gz)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *archive == "" {
		ts := time.Now().UTC().Format("20060102T150405Z")
		*archive = filepath.Join("backups", "bossspawner-"+ts+".tar.gz")
	}

	m, err := ops.BackupDataDir(*dataDir, *archive)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s files=%d digest=%s\n", *archive, m.Files, m.Digest)
	return nil
}

func cmdRestore(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	archive := fs.String("archive", "", "input backup archive (.tar.gz)")
	target := fs.String("target-dir", "data-restored", "restore target directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *archive == "" {
		return fmt.Errorf("archive is required")
	}
	m, err := ops.RestoreDataDir(*archive, *target)
	if err != nil {
		return err
	}
	ids, err := ops.InspectActivations(*target)
	if err != nil {
		return fmt.Errorf("restored activations unreadable: %w", err)
	}
	fmt.Fprintf(out, "%s files=%d digest=%s activations=%v\n", *target, m.Files, m.Digest, ids)
	return nil
}

func cmdDrill(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("drill", flag.ContinueOnError)
	dataDir := fs.String("data-dir", "data", "path to data directory")
	workDir := fs.String("work-dir", os.TempDir(), "temporary workspace for drill artifacts")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := ops.Drill(*dataDir, *workDir, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "backup:", res.Archive)
	fmt.Fprintln(out, "restored:", res.RestoredDir)
	fmt.Fprintln(out, "digest:", res.Source.Digest)
	fmt.Fprintln(out, "activations:", len(res.Activations))
	return nil
}

func cmdSchema(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("schema", flag.ContinueOnError)
	outPath := fs.String("out", "", "write the schema here instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := json.MarshalIndent(buildSchema(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	data = append(data, '\n')
	if *outPath == "" {
		_, err = out.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}
	tmp := *outPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	return os.Rename(tmp, *outPath)
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		ExpandedStruct:            true,
	}
	schema := reflector.Reflect(new(config.Config))
	schema.Title = "Boss Spawner Config"
	schema.Description = "Validates bosses.yml"
	return schema
}

func cmdValidate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	path := fs.String("config", config.DefaultPath, "path to the boss config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}
	config.ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s ok: %d bosses\n", *path, len(cfg.Bosses))
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  bossspawner-ops backup   --data-dir data --out backups/backup.tar.gz")
	fmt.Fprintln(w, "  bossspawner-ops restore  --archive backups/backup.tar.gz --target-dir data-restored")
	fmt.Fprintln(w, "  bossspawner-ops drill    --data-dir data --work-dir /tmp")
	fmt.Fprintln(w, "  bossspawner-ops schema   [--out bosses.schema.json]")
	fmt.Fprintln(w, "  bossspawner-ops validate --config bosses.yml")
}
