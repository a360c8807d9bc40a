package image

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rstms/minifat"
	"github.com/rstms/minifat/fat"
	"github.com/spf13/afero"
)

type FileRecord struct {
	Name    string
	Path    string
	Dir     bool
	Size    int64
	Cluster uint32
}

type Stats struct {
	Drive         string
	ClusterSize   int
	TotalClusters int
	FreeClusters  int
	UsedClusters  int
}

func (s Stats) FreeBytes() int64 {
	return int64(s.FreeClusters) * int64(s.ClusterSize)
}

func (s Stats) TotalBytes() int64 {
	return int64(s.TotalClusters) * int64(s.ClusterSize)
}

// Options control how an image is opened. A nil Fs means the host
// operating system's filesystem.
type Options struct {
	Fs      afero.Fs
	Verbose bool
}

type Image struct {
	Filename string
	host     afero.Fs
	file     afero.File
	disk     *minifat.FileDisk
	fs       *fat.FileSystem
	verbose  bool
}

func newImage(filename string, opts *Options) *Image {
	i := Image{Filename: filename, host: afero.NewOsFs()}
	if opts != nil {
		if opts.Fs != nil {
			i.host = opts.Fs
		}
		i.verbose = opts.Verbose
	}
	return &i
}

func OpenImage(filename string, opts *Options) (*Image, error) {
	i := newImage(filename, opts)
	var err error
	i.file, err = i.host.OpenFile(filename, os.O_RDWR, 0600)
	if err != nil {
		return nil, Fatalf("open image %s: %v", filename, err)
	}
	i.disk, err = minifat.NewFileDisk(i.file)
	if err != nil {
		i.closeFile()
		return nil, Fatal(err)
	}
	i.fs, err = fat.New(i.disk)
	if err != nil {
		i.closeFile()
		return nil, err
	}
	i.logf("opened %s: %d clusters of %d bytes, %d free", filename,
		i.fs.TotalClusters(), i.fs.ClusterSize(), i.fs.FreeClusters())
	return i, nil
}

func CreateImage(filename string, config *fat.Config, opts *Options) (*Image, error) {
	i := newImage(filename, opts)
	err := i.createImageFile(fat.DiskSize(config))
	if err != nil {
		return nil, Fatal(err)
	}
	i.disk, err = minifat.NewFileDisk(i.file)
	if err != nil {
		i.closeFile()
		return nil, Fatal(err)
	}
	err = fat.Format(i.disk, config)
	if err != nil {
		i.closeFile()
		return nil, Fatal(err)
	}
	i.fs, err = fat.New(i.disk)
	if err != nil {
		i.closeFile()
		return nil, err
	}
	i.logf("created %s: drive %s, %d clusters of %d bytes", filename,
		i.fs.Drive(), i.fs.TotalClusters(), i.fs.ClusterSize())
	return i, nil
}

func (i *Image) closeFile() error {
	if i.file != nil {
		err := i.file.Close()
		if err != nil {
			return Fatal(err)
		}
		i.file = nil
	}
	return nil
}

func (i *Image) closeDisk() error {
	if i.disk != nil {
		if i.fs != nil {
			if err := i.fs.Sync(); err != nil {
				return err
			}
		}
		err := i.disk.Close()
		if err != nil {
			return Fatal(err)
		}
		i.disk = nil
	}
	return nil
}

func (i *Image) Close() error {
	return errors.Join(i.closeDisk(), i.closeFile())
}

// FileSystem exposes the mounted engine.
func (i *Image) FileSystem() *fat.FileSystem {
	return i.fs
}

func (i *Image) Stats() Stats {
	return Stats{
		Drive:         i.fs.Drive(),
		ClusterSize:   i.fs.ClusterSize(),
		TotalClusters: i.fs.TotalClusters(),
		FreeClusters:  i.fs.FreeClusters(),
		UsedClusters:  i.fs.UsedClusters(),
	}
}

// create, truncate, and reopen the output file
func (i *Image) createImageFile(size int64) error {
	var err error
	i.file, err = i.host.OpenFile(i.Filename, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0600)
	if err != nil {
		return Fatal(err)
	}
	err = i.file.Truncate(size)
	if err != nil {
		return Fatal(err)
	}
	return nil
}

func (i *Image) logf(format string, args ...any) {
	if i.verbose {
		log.Printf(format, args...)
	}
}

// sync makes the table and every persisted directory durable.
func (i *Image) sync() error {
	return i.fs.Sync()
}

func record(dir *fat.Directory, e *fat.DirectoryEntry) FileRecord {
	return FileRecord{
		Name:    e.Name(),
		Path:    dir.PathOf(e.Name()),
		Dir:     e.IsDir(),
		Size:    e.Size(),
		Cluster: e.FirstCluster(),
	}
}

// List returns the entries of the directory path names, without "." and
// "..". A file path lists just that file.
func (i *Image) List(cwd Cursor, path string) ([]FileRecord, error) {
	dir, err := i.resolveDir(cwd, path)
	if err != nil {
		if !errors.Is(err, minifat.ErrNotADirectory) {
			return nil, err
		}
		parent, e, ferr := i.resolveEntry(cwd, path)
		if ferr != nil {
			return nil, err
		}
		return []FileRecord{record(parent, e)}, nil
	}
	records := []FileRecord{}
	for _, e := range dir.Children() {
		records = append(records, record(dir, e))
	}
	return records, nil
}

// ScanFiles returns every file and directory on the disk, parents before
// children.
func (i *Image) ScanFiles() ([]FileRecord, error) {
	return walk(i.fs.Root())
}

func walk(dir *fat.Directory) ([]FileRecord, error) {
	records := []FileRecord{}
	for _, e := range dir.Children() {
		records = append(records, record(dir, e))
		if e.IsDir() {
			subdir, err := e.Directory()
			if err != nil {
				return []FileRecord{}, err
			}
			subRecords, err := walk(subdir)
			if err != nil {
				return []FileRecord{}, err
			}
			records = append(records, subRecords...)
		}
	}
	return records, nil
}

func (i *Image) Mkdir(cwd Cursor, path string) error {
	parent, name, err := i.resolveParent(cwd, path)
	if err != nil {
		return err
	}
	if _, err := parent.Mkdir(name); err != nil {
		return err
	}
	i.logf("mkdir %s", parent.PathOf(name))
	return i.sync()
}

// Rmdir removes an empty directory.
func (i *Image) Rmdir(cwd Cursor, path string) error {
	parent, name, err := i.resolveParent(cwd, path)
	if err != nil {
		return err
	}
	if err := parent.Rmdir(name); err != nil {
		return err
	}
	i.logf("rmdir %s", parent.PathOf(name))
	return i.sync()
}

// RemoveAll removes a directory and everything below it.
func (i *Image) RemoveAll(cwd Cursor, path string) error {
	parent, name, err := i.resolveParent(cwd, path)
	if err != nil {
		return err
	}
	if err := parent.RemoveAll(name); err != nil {
		return err
	}
	i.logf("removed tree %s", parent.PathOf(name))
	return i.sync()
}

// CreateFile creates an empty file; the name must be free.
func (i *Image) CreateFile(cwd Cursor, path string) error {
	parent, name, err := i.resolveParent(cwd, path)
	if err != nil {
		return err
	}
	if _, err := parent.CreateFile(name); err != nil {
		return err
	}
	i.logf("created %s", parent.PathOf(name))
	return i.sync()
}

// WriteFile replaces the content of a file, creating it if needed.
func (i *Image) WriteFile(cwd Cursor, path string, data []byte) error {
	parent, name, err := i.resolveParent(cwd, path)
	if err != nil {
		return err
	}
	if err := i.put(parent, name, data, true); err != nil {
		return err
	}
	return i.sync()
}

func (i *Image) ReadFile(cwd Cursor, path string) ([]byte, error) {
	_, e, err := i.resolveEntry(cwd, path)
	if err != nil {
		return nil, err
	}
	return i.fs.Content().ReadContent(e)
}

// Delete removes a file. Given a directory it removes the files directly
// inside it and leaves subdirectories alone.
func (i *Image) Delete(cwd Cursor, path string) error {
	parent, e, err := i.resolveEntry(cwd, path)
	if err != nil {
		return err
	}
	if !e.IsDir() {
		if err := parent.Delete(e.Name()); err != nil {
			return err
		}
		i.logf("deleted %s", parent.PathOf(e.Name()))
		return i.sync()
	}
	dir, err := e.Directory()
	if err != nil {
		return err
	}
	var errs []error
	for _, child := range dir.Children() {
		if child.IsDir() {
			continue
		}
		if err := dir.Delete(child.Name()); err != nil {
			errs = append(errs, err)
			continue
		}
		i.logf("deleted %s", dir.PathOf(child.Name()))
	}
	return errors.Join(append(errs, i.sync())...)
}

// Rename renames a file in place. newName is a bare name.
func (i *Image) Rename(cwd Cursor, path, newName string) error {
	if strings.ContainsAny(newName, `\/:`) {
		return minifat.NewError("rename", newName, minifat.ErrInvalidName)
	}
	parent, e, err := i.resolveEntry(cwd, path)
	if err != nil {
		return err
	}
	if e.IsDir() {
		return minifat.NewError("rename", parent.PathOf(e.Name()), minifat.ErrIsADirectory)
	}
	if err := parent.Rename(e.Name(), newName); err != nil {
		return err
	}
	if err := parent.Persist(); err != nil {
		return err
	}
	return i.sync()
}

// put stores data as the file name in dir. An existing file is replaced
// only when overwrite is set. A new entry is checked for space before
// anything is allocated and withdrawn again if its content cannot be
// written.
func (i *Image) put(dir *fat.Directory, name string, data []byte, overwrite bool) error {
	content := i.fs.Content()
	if e := dir.Lookup(name); e != nil {
		if e.IsDir() {
			return minifat.NewError("write", dir.PathOf(e.Name()), minifat.ErrIsADirectory)
		}
		if !overwrite {
			return minifat.NewError("write", dir.PathOf(e.Name()), minifat.ErrAlreadyExists)
		}
		if err := content.WriteContent(e, data); err != nil {
			return err
		}
		i.logf("wrote %d bytes to %s", len(data), dir.PathOf(e.Name()))
		return dir.Persist()
	}
	e, err := fat.NewFileEntry(name)
	if err != nil {
		return err
	}
	e.SetSize(int64(len(data)))
	if err := dir.AddEntry(e); err != nil {
		return err
	}
	if err := content.WriteContent(e, data); err != nil {
		if _, rerr := dir.RemoveEntry(dir.Search(e.Name())); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	i.logf("wrote %d bytes to new file %s", len(data), dir.PathOf(e.Name()))
	return dir.Persist()
}

// Copy copies src to dst and returns the number of files copied. A file
// copies to a new name, onto an existing file when overwrite is set, or
// into an existing directory under its own name. A directory copies the
// files directly inside it into an existing directory. An empty dst means
// the current directory. Content is always duplicated.
func (i *Image) Copy(cwd Cursor, src, dst string, overwrite bool) (int, error) {
	srcDir, srcEntry, err := i.resolveEntry(cwd, src)
	if err != nil {
		return 0, err
	}
	if srcEntry.IsDir() {
		return i.copyDir(cwd, srcEntry, dst, overwrite)
	}

	var dstDir *fat.Directory
	name := srcEntry.Name()
	if dst == "" {
		dstDir, err = i.cursorDir(cwd)
	} else if dir, derr := i.resolveDir(cwd, dst); derr == nil {
		dstDir = dir
	} else {
		dstDir, name, err = i.resolveParent(cwd, dst)
	}
	if err != nil {
		return 0, err
	}
	if target := dstDir.Lookup(name); target == srcEntry {
		return 0, minifat.NewError("copy", srcDir.PathOf(srcEntry.Name()),
			errors.New("file cannot be copied onto itself"))
	}
	if err := i.copyFile(srcEntry, dstDir, name, overwrite); err != nil {
		return 0, err
	}
	return 1, i.sync()
}

func (i *Image) copyDir(cwd Cursor, srcEntry *fat.DirectoryEntry, dst string, overwrite bool) (int, error) {
	srcDir, err := srcEntry.Directory()
	if err != nil {
		return 0, err
	}
	dstDir, err := i.resolveDir(cwd, dst)
	if err != nil {
		return 0, err
	}
	if dstDir == srcDir {
		return 0, minifat.NewError("copy", srcDir.FullPath(),
			errors.New("directory cannot be copied onto itself"))
	}
	count := 0
	var errs []error
	for _, e := range srcDir.Children() {
		if e.IsDir() {
			continue
		}
		if err := i.copyFile(e, dstDir, e.Name(), overwrite); err != nil {
			errs = append(errs, err)
			continue
		}
		count++
	}
	return count, errors.Join(append(errs, i.sync())...)
}

func (i *Image) copyFile(src *fat.DirectoryEntry, dstDir *fat.Directory, name string, overwrite bool) error {
	data, err := i.fs.Content().ReadContent(src)
	if err != nil {
		return err
	}
	return i.put(dstDir, name, data, overwrite)
}

// Import copies a host file, or the regular files directly inside a host
// directory, onto the disk. dst follows the rules of Copy.
func (i *Image) Import(cwd Cursor, hostPath, dst string, overwrite bool) (int, error) {
	isDir, err := afero.IsDir(i.host, hostPath)
	if err != nil {
		return 0, Fatal(err)
	}
	if !isDir {
		var dstDir *fat.Directory
		name := filepath.Base(hostPath)
		if dst == "" {
			dstDir, err = i.cursorDir(cwd)
		} else if dir, derr := i.resolveDir(cwd, dst); derr == nil {
			dstDir = dir
		} else {
			dstDir, name, err = i.resolveParent(cwd, dst)
		}
		if err != nil {
			return 0, err
		}
		if err := i.importFile(hostPath, dstDir, name, overwrite); err != nil {
			return 0, err
		}
		return 1, i.sync()
	}

	dstDir, err := i.resolveDir(cwd, dst)
	if err != nil {
		return 0, err
	}
	infos, err := afero.ReadDir(i.host, hostPath)
	if err != nil {
		return 0, Fatal(err)
	}
	count := 0
	var errs []error
	for _, info := range infos {
		if !info.Mode().IsRegular() {
			continue
		}
		err := i.importFile(filepath.Join(hostPath, info.Name()), dstDir, info.Name(), overwrite)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		count++
	}
	return count, errors.Join(append(errs, i.sync())...)
}

func (i *Image) importFile(hostPath string, dir *fat.Directory, name string, overwrite bool) error {
	if _, err := fat.CleanName(name); err != nil {
		return err
	}
	data, err := afero.ReadFile(i.host, hostPath)
	if err != nil {
		return Fatal(err)
	}
	i.logf("import %s (%d bytes)", hostPath, len(data))
	return i.put(dir, name, data, overwrite)
}

// Export writes a file, or the files directly inside a directory, to the
// host. A file exported to an existing host directory keeps its name.
func (i *Image) Export(cwd Cursor, src, hostPath string, overwrite bool) (int, error) {
	dir, e, err := i.resolveEntry(cwd, src)
	if err != nil {
		return 0, err
	}
	if !e.IsDir() {
		target := hostPath
		isDir, err := afero.IsDir(i.host, hostPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return 0, Fatal(err)
		}
		if isDir {
			target = filepath.Join(hostPath, e.Name())
		}
		if err := i.exportFile(dir, e, target, overwrite); err != nil {
			return 0, err
		}
		return 1, nil
	}

	sub, err := e.Directory()
	if err != nil {
		return 0, err
	}
	if err := i.host.MkdirAll(hostPath, 0700); err != nil {
		return 0, Fatal(err)
	}
	count := 0
	var errs []error
	for _, child := range sub.Children() {
		if child.IsDir() {
			continue
		}
		if err := i.exportFile(sub, child, filepath.Join(hostPath, child.Name()), overwrite); err != nil {
			errs = append(errs, err)
			continue
		}
		count++
	}
	return count, errors.Join(errs...)
}

func (i *Image) exportFile(dir *fat.Directory, e *fat.DirectoryEntry, target string, overwrite bool) error {
	exists, err := afero.Exists(i.host, target)
	if err != nil {
		return Fatal(err)
	}
	if exists && !overwrite {
		return minifat.NewError("export", target, minifat.ErrAlreadyExists)
	}
	data, err := i.fs.Content().ReadContent(e)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(i.host, target, data, 0600); err != nil {
		return Fatal(err)
	}
	i.logf("export %s -> %s (%d bytes)", dir.PathOf(e.Name()), target, len(data))
	return nil
}

// Each applies op to every target, continuing past failures, and returns
// the failures joined.
func Each(targets []string, op func(string) error) error {
	var errs []error
	for _, target := range targets {
		if err := op(target); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
