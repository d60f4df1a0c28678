// Command shadercache inspects, verifies and purges per-title program
// binary cache files.
//
// Usage:
//
//	shadercache [flags] inspect|verify|purge [title-id ...]
//
// Title ids are hexadecimal. Without title ids every cache file in the
// cache directory is processed. verify deletes files that fail to load, the
// same recovery the renderer applies, and with -fix rewrites files whose
// entries do not decode.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/gogpu/shadercache"
	"github.com/gogpu/shadercache/backend/native"
	"github.com/gogpu/shadercache/binarycache"
	"github.com/gogpu/shadercache/config"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

var errUsage = errors.New("usage: shadercache [flags] inspect|verify|purge [title-id ...]")

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("shadercache", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "~/.config/shadercache/config.toml", "settings file")
		dir        = fs.String("dir", "", "cache directory (overrides the settings file)")
		fix        = fs.Bool("fix", false, "verify: rewrite files without undecodable entries")
		verbose    = fs.Bool("v", false, "inspect: list entries")
	)
	fs.SetOutput(out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errUsage
	}

	settings, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dir != "" {
		settings.CacheDir = *dir
	}
	shadercache.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: settings.SlogLevel()})))

	cacheDir, err := settings.CacheDirPath()
	if err != nil {
		return err
	}
	paths, err := cachePaths(cacheDir, fs.Args()[1:])
	if err != nil {
		return err
	}

	switch fs.Arg(0) {
	case "inspect":
		return inspect(out, paths, *verbose)
	case "verify":
		return verify(out, paths, *fix)
	case "purge":
		return purge(out, paths)
	default:
		return errUsage
	}
}

// cachePaths resolves title ids to cache files, or lists every cache file
// in dir.
func cachePaths(dir string, titles []string) ([]string, error) {
	if len(titles) == 0 {
		paths, err := filepath.Glob(filepath.Join(dir, "*.cache"))
		if err != nil {
			return nil, err
		}
		slices.Sort(paths)
		return paths, nil
	}
	paths := make([]string, 0, len(titles))
	for _, t := range titles {
		id, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(t), "0x"), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad title id %q: %w", t, err)
		}
		paths = append(paths, binarycache.Path(dir, id))
	}
	return paths, nil
}

func inspect(out io.Writer, paths []string, verbose bool) error {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", path, err)
			continue
		}
		entries, err := readOnly(path)
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(out, "%s: %d entries, %d bytes\n", path, len(entries), info.Size())
		if !verbose {
			continue
		}
		for _, h := range sortedHashes(entries) {
			e := entries[h]
			fmt.Fprintf(out, "  %016x format=%#x size=%d", h, e.Format, len(e.Binary))
			if bi, err := native.DescribeBinary(e.Format, e.Binary); err == nil {
				fmt.Fprintf(out, " renderer=%q", bi.Renderer)
				for _, s := range bi.Stages {
					fmt.Fprintf(out, " %s:%s[%d words; %s]", s.Kind, s.EntryPoint, s.Words, strings.Join(s.Resources, ","))
				}
			}
			fmt.Fprintln(out)
		}
	}
	return nil
}

// readOnly loads a cache file without the deletion Load applies to
// damaged files.
func readOnly(path string) (map[uint64]binarycache.Entry, error) {
	tmp, err := os.CreateTemp("", "shadercache-*.cache")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	src, err := os.Open(path)
	if err != nil {
		_ = tmp.Close()
		return nil, err
	}
	_, err = io.Copy(tmp, src)
	_ = src.Close()
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return binarycache.Load(tmpPath)
}

func verify(out io.Writer, paths []string, fix bool) error {
	var failed int
	for _, path := range paths {
		entries, err := binarycache.Load(path)
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s: removed: %v\n", path, err)
			continue
		}

		var bad []uint64
		for _, h := range sortedHashes(entries) {
			e := entries[h]
			if e.Format != native.BinaryFormat {
				continue
			}
			if _, err := native.DescribeBinary(e.Format, e.Binary); err != nil {
				bad = append(bad, h)
				fmt.Fprintf(out, "%s: entry %016x: %v\n", path, h, err)
			}
		}
		if len(bad) == 0 {
			fmt.Fprintf(out, "%s: ok, %d entries\n", path, len(entries))
			continue
		}
		failed++
		if !fix {
			continue
		}
		for _, h := range bad {
			delete(entries, h)
		}
		if err := binarycache.Save(path, entries); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: rewritten, %d entries\n", path, len(entries))
	}
	if failed > 0 && !fix {
		return fmt.Errorf("%d of %d cache files failed verification", failed, len(paths))
	}
	return nil
}

func purge(out io.Writer, paths []string) error {
	for _, path := range paths {
		if err := binarycache.Delete(path); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: removed\n", path)
	}
	return nil
}

func sortedHashes(entries map[uint64]binarycache.Entry) []uint64 {
	hashes := make([]uint64, 0, len(entries))
	for h := range entries {
		hashes = append(hashes, h)
	}
	slices.Sort(hashes)
	return hashes
}
