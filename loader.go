package ftl

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/klauspost/readahead"
)

// Loader provides template source by full template name. A missing
// template is reported with an error wrapping fs.ErrNotExist.
type Loader interface {
	Load(name string) (string, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(name string) (string, error)

// Load calls f.
func (f LoaderFunc) Load(name string) (string, error) {
	return f(name)
}

// MapLoader serves templates from memory.
type MapLoader map[string]string

// Load implements Loader.
func (m MapLoader) Load(name string) (string, error) {
	source, ok := m[name]
	if !ok {
		return "", fmt.Errorf("%s: %w", name, fs.ErrNotExist)
	}
	return source, nil
}

type fsLoader struct {
	fsys fs.FS
}

// FSLoader loads templates from a file system. Template names are paths
// relative to its root.
func FSLoader(fsys fs.FS) Loader {
	return &fsLoader{fsys: fsys}
}

// FileSystemLoader loads templates from a directory.
func FileSystemLoader(dir string) Loader {
	return &fsLoader{fsys: os.DirFS(dir)}
}

func (l *fsLoader) Load(name string) (string, error) {
	f, err := l.fsys.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()

	ra := readahead.NewReader(f)
	defer ra.Close()

	data, err := io.ReadAll(ra)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", name, err)
	}
	return string(data), nil
}

// ResolveName turns a template name used inside the template base into a
// full name. Names starting with "/" are relative to the template root,
// others to the directory of base. "." and ".." segments are resolved;
// leaving the root is an error.
func ResolveName(base, name string) (string, error) {
	if name == "" {
		return "", NewError(ErrMalformedTemplateName, "the template name is empty")
	}
	if strings.ContainsRune(name, '\\') {
		return "", NewError(ErrMalformedTemplateName,
			fmt.Sprintf("template name %q contains a backslash; use \"/\" to separate directories", name))
	}

	full := name
	if !strings.HasPrefix(name, "/") {
		if i := strings.LastIndexByte(base, '/'); i >= 0 {
			full = base[:i+1] + name
		}
	}

	segments := strings.Split(full, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
		case "..":
			if len(out) == 0 {
				return "", NewError(ErrMalformedTemplateName,
					fmt.Sprintf("template name %q points outside the template root", name))
			}
			out = out[:len(out)-1]
		default:
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "", NewError(ErrMalformedTemplateName,
			fmt.Sprintf("template name %q does not name a template", name))
	}
	return strings.Join(out, "/"), nil
}
