package log

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// MaxLogFiles is how many log files of a prefix are kept when a new one is opened.
const MaxLogFiles = 20

type logFile struct {
	path    string
	modTime time.Time
}

// pruneOldLogs removes the oldest "<prefix>-*.txt" files in dir beyond maxKeep.
func pruneOldLogs(dir, prefix string, maxKeep int) error {
	if maxKeep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	files := make([]logFile, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".txt") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, logFile{path: filepath.Join(dir, name), modTime: info.ModTime()})
	}

	if len(files) <= maxKeep {
		return nil
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})

	for _, f := range files[maxKeep:] {
		_ = os.Remove(f.path)
	}

	return nil
}
