// Package ops backs up and restores the spawner's data directory, which holds
// the persisted boss activations.
package ops

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"bossspawner/internal/activation"
)

// Manifest summarizes an archive or a directory.
type Manifest struct {
	Files  int    `json:"files"`
	Digest string `json:"digest"`
}

// BackupDataDir writes srcDir into a gzipped tarball at archivePath.
func BackupDataDir(srcDir, archivePath string) (Manifest, error) {
	srcDir = filepath.Clean(strings.TrimSpace(srcDir))
	archivePath = filepath.Clean(strings.TrimSpace(archivePath))
	if srcDir == "" || archivePath == "" {
		return Manifest{}, fmt.Errorf("srcDir and archivePath are required")
	}
	info, err := os.Stat(srcDir)
	if err != nil {
		return Manifest{}, err
	}
	if !info.IsDir() {
		return Manifest{}, fmt.Errorf("source is not a directory: %s", srcDir)
	}
	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		return Manifest{}, err
	}

	f, err := os.Create(archivePath)
	if err != nil {
		return Manifest{}, err
	}
	defer f.Close()
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	files, err := regularFiles(srcDir)
	if err != nil {
		return Manifest{}, err
	}
	digest := sha256.New()
	for _, rel := range files {
		if err := addFile(tw, digest, srcDir, rel); err != nil {
			return Manifest{}, fmt.Errorf("archive %s: %w", rel, err)
		}
	}

	if err := tw.Close(); err != nil {
		return Manifest{}, err
	}
	if err := gz.Close(); err != nil {
		return Manifest{}, err
	}
	if err := f.Close(); err != nil {
		return Manifest{}, err
	}
	return Manifest{Files: len(files), Digest: hex.EncodeToString(digest.Sum(nil))}, nil
}

func addFile(tw *tar.Writer, digest hash.Hash, root, rel string) error {
	path := filepath.Join(root, filepath.FromSlash(rel))
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = rel
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()
	writeDigestName(digest, rel)
	if _, err := io.Copy(io.MultiWriter(tw, digest), src); err != nil {
		return err
	}
	_, _ = io.WriteString(digest, "\n")
	return nil
}

// RestoreDataDir unpacks an archive made by BackupDataDir into targetDir.
func RestoreDataDir(archivePath, targetDir string) (Manifest, error) {
	archivePath = filepath.Clean(strings.TrimSpace(archivePath))
	targetDir = filepath.Clean(strings.TrimSpace(targetDir))
	if archivePath == "" || targetDir == "" {
		return Manifest{}, fmt.Errorf("archivePath and targetDir are required")
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return Manifest{}, err
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return Manifest{}, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return Manifest{}, err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Manifest{}, err
		}

		rel, err := sanitizeArchiveRelPath(hdr.Name)
		if err != nil {
			return Manifest{}, err
		}
		outPath := filepath.Join(targetDir, rel)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(outPath, 0o755); err != nil {
				return Manifest{}, err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return Manifest{}, err
			}
			if err := writeEntry(outPath, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return Manifest{}, err
			}
		default:
			// Links and devices never appear in a data dir.
		}
	}

	return DirDigest(targetDir)
}

func writeEntry(path string, r io.Reader, mode os.FileMode) error {
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, r); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

// DirDigest hashes every regular file under root by relative path and
// content, in lexical order.
func DirDigest(root string) (Manifest, error) {
	root = filepath.Clean(root)
	files, err := regularFiles(root)
	if err != nil {
		return Manifest{}, err
	}
	h := sha256.New()
	for _, rel := range files {
		b, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return Manifest{}, err
		}
		writeDigestName(h, rel)
		_, _ = h.Write(b)
		_, _ = io.WriteString(h, "\n")
	}
	return Manifest{Files: len(files), Digest: hex.EncodeToString(h.Sum(nil))}, nil
}

func writeDigestName(h hash.Hash, rel string) {
	_, _ = io.WriteString(h, rel)
	_, _ = io.WriteString(h, "\n")
}

// regularFiles lists files under root as slash paths. Symlinks are skipped.
func regularFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(out)
	return out, err
}

func sanitizeArchiveRelPath(name string) (string, error) {
	name = filepath.Clean(strings.TrimSpace(name))
	if name == "." || name == "" {
		return "", fmt.Errorf("invalid archive entry path")
	}
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("invalid absolute archive entry path: %s", name)
	}
	if strings.HasPrefix(name, ".."+string(filepath.Separator)) || name == ".." {
		return "", fmt.Errorf("invalid archive entry path traversal: %s", name)
	}
	return name, nil
}

// InspectActivations loads the activation store in dataDir and returns the
// boss ids it holds.
func InspectActivations(dataDir string) ([]string, error) {
	backend, err := activation.NewFileBackend(dataDir)
	if err != nil {
		return nil, err
	}
	store := activation.NewStore(backend, nil)
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store.IDs(), nil
}

// DrillResult describes a backup-and-restore rehearsal.
type DrillResult struct {
	Archive     string   `json:"archive"`
	RestoredDir string   `json:"restored_dir"`
	Source      Manifest `json:"source"`
	Restored    Manifest `json:"restored"`
	Activations []string `json:"activations"`
}

// Drill backs dataDir up into workDir, restores it next to the archive and
// checks the copy is identical and loadable.
func Drill(dataDir, workDir string, now time.Time) (DrillResult, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return DrillResult{}, err
	}
	ts := now.UTC().Format("20060102T150405Z")
	res := DrillResult{
		Archive:     filepath.Join(workDir, "bossspawner-drill-"+ts+".tar.gz"),
		RestoredDir: filepath.Join(workDir, "bossspawner-drill-restore-"+ts),
	}

	var err error
	if res.Source, err = BackupDataDir(dataDir, res.Archive); err != nil {
		return res, err
	}
	if res.Restored, err = RestoreDataDir(res.Archive, res.RestoredDir); err != nil {
		return res, err
	}
	if res.Source != res.Restored {
		return res, fmt.Errorf("digest mismatch after restore: src=%s restored=%s", res.Source.Digest, res.Restored.Digest)
	}
	if res.Activations, err = InspectActivations(res.RestoredDir); err != nil {
		return res, fmt.Errorf("restored activations unreadable: %w", err)
	}
	return res, nil
}
