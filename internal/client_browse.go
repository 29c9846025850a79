package internal

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"

	"dropflow/internal/catalog"
)

const maxBrowseItems = 30

// localItem is one entry of a local directory listing shown by /ls so the
// user can find paths to /upload.
type localItem struct {
	Name  string
	Path  string
	IsDir bool
	Size  int64
}

// browseDirectory lists path with directories first, both groups by name.
// Dotfiles are skipped like the server-side catalog does.
func browseDirectory(path string) ([]localItem, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	items := make([]localItem, 0, len(entries)+1)
	if parent := filepath.Dir(path); parent != path {
		items = append(items, localItem{Name: "..", Path: parent, IsDir: true})
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		item := localItem{
			Name:  entry.Name(),
			Path:  filepath.Join(path, entry.Name()),
			IsDir: entry.IsDir(),
		}
		if !entry.IsDir() {
			if info, err := entry.Info(); err == nil {
				item.Size = info.Size()
			}
		}
		items = append(items, item)
	}

	slices.SortStableFunc(items, func(a, b localItem) int {
		switch {
		case a.Name == "..":
			return -1
		case b.Name == "..":
			return 1
		case a.IsDir != b.IsDir:
			if a.IsDir {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	return items, nil
}

// defaultBrowsePath is where /ls starts: ~/Downloads, ~/Documents, home,
// then the working directory.
func defaultBrowsePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		for _, dir := range []string{"Downloads", "Documents"} {
			candidate := filepath.Join(home, dir)
			if info, err := os.Stat(candidate); err == nil && info.IsDir() {
				return candidate
			}
		}
		return home
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// resolveBrowsePath interprets the /ls and /upload argument relative to the
// directory last listed.
func (model *TUIModel) resolveBrowsePath(arg string) string {
	switch {
	case arg == "":
		if model.browsePath != "" {
			return model.browsePath
		}
		return defaultBrowsePath()
	case strings.HasPrefix(arg, "~"):
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(arg, "~"))
		}
	case !filepath.IsAbs(arg) && model.browsePath != "":
		return filepath.Join(model.browsePath, arg)
	}
	return filepath.Clean(arg)
}

func (model *TUIModel) browse(arg string) {
	path := model.resolveBrowsePath(arg)
	items, err := browseDirectory(path)
	if err != nil {
		model.addNotice("Cannot list " + path + ": " + err.Error())
		return
	}
	model.browsePath = path
	model.browseItems = items
	model.tab = tabFiles
}

func describeLocalItem(item localItem) string {
	if item.IsDir {
		return "📁 " + item.Name + "/"
	}
	return catalog.IconFor(item.Name) + " " + item.Name + "  " + catalog.FormatSize(item.Size)
}
