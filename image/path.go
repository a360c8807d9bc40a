package image

import (
	"strings"

	"github.com/rstms/minifat"
	"github.com/rstms/minifat/fat"
)

// Delimiter separates path components on the virtual disk. A forward
// slash is accepted as well.
const Delimiter = `\`

// Cursor is an absolute position in the directory tree, e.g. C:\DOCS.
// Navigation takes a cursor and returns a new one; nothing is shared.
type Cursor string

// vpath is a parsed virtual disk path.
type vpath struct {
	drive    string
	absolute bool
	parts    []string
}

func parsePath(p string) vpath {
	p = strings.ReplaceAll(strings.TrimSpace(p), "/", Delimiter)
	var v vpath
	if i := strings.IndexByte(p, ':'); i > 0 && !strings.Contains(p[:i], Delimiter) {
		v.drive = p[:i]
		v.absolute = true
		p = p[i+1:]
	} else if strings.HasPrefix(p, Delimiter) {
		v.absolute = true
	}
	for _, part := range strings.Split(p, Delimiter) {
		if part != "" {
			v.parts = append(v.parts, part)
		}
	}
	return v
}

// splitLast separates the final component of p from its parent path.
func splitLast(p string) (string, string) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "/", Delimiter)
	i := strings.LastIndex(p, Delimiter)
	if i < 0 {
		if j := strings.IndexByte(p, ':'); j > 0 {
			return p[:j+1] + Delimiter, p[j+1:]
		}
		return "", p
	}
	parent := p[:i]
	if parent == "" || strings.HasSuffix(parent, ":") {
		parent += Delimiter
	}
	return parent, p[i+1:]
}

// Root returns the cursor for the root directory.
func (i *Image) Root() Cursor {
	return Cursor(i.fs.Root().FullPath())
}

// Chdir resolves path against cwd and returns the cursor of the
// directory it names.
func (i *Image) Chdir(cwd Cursor, path string) (Cursor, error) {
	dir, err := i.resolveDir(cwd, path)
	if err != nil {
		return cwd, err
	}
	return Cursor(dir.FullPath()), nil
}

// cursorDir returns the directory a cursor points at.
func (i *Image) cursorDir(cwd Cursor) (*fat.Directory, error) {
	if cwd == "" {
		return i.fs.Root(), nil
	}
	v := parsePath(string(cwd))
	if !v.absolute {
		return nil, minifat.NewError("chdir", string(cwd), minifat.ErrNotFound)
	}
	return i.walk(i.fs.Root(), v)
}

// resolveDir resolves path against cwd to a directory.
func (i *Image) resolveDir(cwd Cursor, path string) (*fat.Directory, error) {
	v := parsePath(path)
	if v.absolute {
		return i.walk(i.fs.Root(), v)
	}
	start, err := i.cursorDir(cwd)
	if err != nil {
		return nil, err
	}
	return i.walk(start, v)
}

func (i *Image) walk(dir *fat.Directory, v vpath) (*fat.Directory, error) {
	if v.drive != "" && !strings.EqualFold(v.drive+":", i.fs.Drive()) {
		return nil, minifat.NewError("chdir", v.drive+":", minifat.ErrNotFound)
	}
	for _, part := range v.parts {
		switch part {
		case ".":
			continue
		case "..":
			if dir.Parent() != nil {
				dir = dir.Parent()
			}
			continue
		}
		e := dir.Lookup(part)
		if e == nil {
			return nil, minifat.NewError("chdir", dir.PathOf(part), minifat.ErrNotFound)
		}
		if !e.IsDir() {
			return nil, minifat.NewError("chdir", dir.PathOf(e.Name()), minifat.ErrNotADirectory)
		}
		sub, err := e.Directory()
		if err != nil {
			return nil, err
		}
		dir = sub
	}
	return dir, nil
}

// resolveParent resolves everything but the last component of path and
// returns the parent directory with the final name.
func (i *Image) resolveParent(cwd Cursor, path string) (*fat.Directory, string, error) {
	parentPath, name := splitLast(path)
	parent, err := i.resolveDir(cwd, parentPath)
	if err != nil {
		return nil, "", err
	}
	return parent, name, nil
}

// resolveEntry returns the entry path names along with the directory
// holding it.
func (i *Image) resolveEntry(cwd Cursor, path string) (*fat.Directory, *fat.DirectoryEntry, error) {
	parent, name, err := i.resolveParent(cwd, path)
	if err != nil {
		return nil, nil, err
	}
	if name == "" || name == "." || name == ".." {
		return nil, nil, minifat.NewError("lookup", path, minifat.ErrInvalidName)
	}
	e := parent.Lookup(name)
	if e == nil {
		return nil, nil, minifat.NewError("lookup", parent.PathOf(name), minifat.ErrNotFound)
	}
	return parent, e, nil
}

// Stat resolves path to its entry.
func (i *Image) Stat(cwd Cursor, path string) (minifat.DirectoryEntry, error) {
	_, e, err := i.resolveEntry(cwd, path)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// IsDir reports whether path names a directory.
func (i *Image) IsDir(cwd Cursor, path string) bool {
	_, err := i.resolveDir(cwd, path)
	return err == nil
}
