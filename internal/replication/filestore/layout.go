package filestore

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/mrlokans/librarysync/internal/replication"
	"github.com/mrlokans/librarysync/internal/storage"
	"github.com/mrlokans/librarysync/internal/utils"
)

// dataFile is a parsed "<kind>_<millis>.<ext>" file name.
type dataFile struct {
	Name     string
	Kind     replication.DataKind
	Modified int64
	Ext      string
}

var perBookKinds = map[replication.DataKind]bool{
	replication.DataBook:      true,
	replication.DataProgress:  true,
	replication.DataAudioBook: true,
	replication.DataSubtitle:  true,
	replication.DataCover:     true,
	replication.DataLastRead:  true,
}

var rootKinds = map[replication.DataKind]bool{
	replication.DataStatistics: true,
	replication.DataGoals:      true,
}

func fileName(kind replication.DataKind, modified int64, ext string) string {
	return fmt.Sprintf("%s_%d.%s", kind, modified, ext)
}

func parseFileName(name string) (dataFile, bool) {
	ext := path.Ext(name)
	if ext == "" {
		return dataFile{}, false
	}
	base := strings.TrimSuffix(name, ext)
	i := strings.LastIndex(base, "_")
	if i <= 0 {
		return dataFile{}, false
	}
	kind := replication.DataKind(base[:i])
	if !perBookKinds[kind] && !rootKinds[kind] {
		return dataFile{}, false
	}
	modified, err := strconv.ParseInt(base[i+1:], 10, 64)
	if err != nil || modified < 0 {
		return dataFile{}, false
	}
	return dataFile{Name: name, Kind: kind, Modified: modified, Ext: strings.TrimPrefix(ext, ".")}, true
}

// latestOf returns the file of kind with the newest timestamp in its name.
func latestOf(entries []storage.FileInfo, kind replication.DataKind) (dataFile, bool) {
	files := storage.FilterFiles(entries, func(e storage.FileInfo) bool {
		f, ok := parseFileName(e.Name)
		return ok && !e.IsDir && f.Kind == kind
	})
	latest := storage.FindLatest(files, func(e storage.FileInfo) int64 {
		f, _ := parseFileName(e.Name)
		return f.Modified
	})
	if latest == nil {
		return dataFile{}, false
	}
	return parseFileName(latest.Name)
}

// folderName is the directory that holds a book's files.
func folderName(title string) string {
	return utils.SanitizeFilename(title)
}

// parseReference splits "<folder>/<file>" or "<file>" and checks the file is
// of kind.
func parseReference(ref string, kind replication.DataKind) (folder string, file dataFile, ok bool) {
	ref = strings.Trim(ref, "/")
	if ref == "" {
		return "", dataFile{}, false
	}
	parts := strings.Split(ref, "/")

	switch {
	case rootKinds[kind] && len(parts) == 1:
		file, ok = parseFileName(parts[0])
	case perBookKinds[kind] && len(parts) == 2:
		if parts[0] == "." || parts[0] == ".." || parts[0] == "" {
			return "", dataFile{}, false
		}
		folder = parts[0]
		file, ok = parseFileName(parts[1])
	}
	if !ok || file.Kind != kind {
		return "", dataFile{}, false
	}
	return folder, file, true
}

func reference(folder, name string) string {
	if folder == "" {
		return name
	}
	return folder + "/" + name
}
