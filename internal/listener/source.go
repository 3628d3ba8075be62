package listener

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// InboxFile is one request file found in the inbox.
type InboxFile struct {
	Name    string
	Raw     []byte
	ModTime time.Time
}

// Source yields request files waiting to be processed.
type Source interface {
	Collect(max int) ([]InboxFile, error)
}

var requestExtensions = map[string]struct{}{
	".txt": {}, ".csv": {}, ".tsv": {}, ".xlsx": {}, ".xlsm": {},
}

// DirSource reads request files from a directory, oldest first. Hidden files,
// subdirectories and unknown extensions are ignored.
type DirSource struct {
	Dir string
}

func (s DirSource) Collect(max int) ([]InboxFile, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []InboxFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
			continue
		}
		if _, ok := requestExtensions[strings.ToLower(filepath.Ext(name))]; !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.Dir, name))
		if err != nil {
			return nil, err
		}
		files = append(files, InboxFile{Name: name, Raw: raw, ModTime: info.ModTime()})
	}

	sort.SliceStable(files, func(i, j int) bool { return files[i].ModTime.Before(files[j].ModTime) })
	if max > 0 && len(files) > max {
		files = files[:max]
	}
	return files, nil
}
