package image

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/rstms/minifat/fat"
	"github.com/spf13/afero"
)

// RewriteImage copies every directory and file of srcFile into a freshly
// formatted dstFile with the geometry in config. Zero fields in config keep
// the source's drive, cluster size and cluster count. Both files live on
// opts.Fs. On failure dstFile is removed.
func RewriteImage(dstFile, srcFile string, config *fat.Config, opts *Options) error {
	src, err := OpenImage(srcFile, opts)
	if err != nil {
		return err
	}
	defer src.Close()

	records, err := src.ScanFiles()
	if err != nil {
		return err
	}

	geometry := fat.Config{}
	if config != nil {
		geometry = *config
	}
	if geometry.Drive == "" {
		geometry.Drive = strings.TrimSuffix(src.fs.Drive(), ":")
	}
	if geometry.ClusterSize == 0 {
		geometry.ClusterSize = src.fs.ClusterSize()
	}
	if geometry.Clusters == 0 {
		geometry.Clusters = src.fs.TotalClusters()
	}

	dst, err := CreateImage(dstFile, &geometry, opts)
	if err != nil {
		return err
	}
	err = copyTree(dst, src, records)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if rerr := dst.host.Remove(dstFile); rerr != nil {
			return errors.Join(err, Fatal(rerr))
		}
		return err
	}
	src.logf("rewrote %s to %s: %d records", srcFile, dstFile, len(records))
	return nil
}

func copyTree(dst, src *Image, records []FileRecord) error {
	root := dst.Root()
	for _, record := range records {
		path := rootRelative(record.Path)
		if record.Dir {
			err := dst.Mkdir(root, path)
			if err != nil {
				return err
			}
			continue
		}
		data, err := src.ReadFile(src.Root(), path)
		if err != nil {
			return err
		}
		err = dst.WriteFile(root, path, data)
		if err != nil {
			return err
		}
	}
	return nil
}

// MungeImage rewrites srcFile into dstFile, grown by enough clusters to
// hold the named host files, and imports those files into the root
// directory.
func MungeImage(dstFile, srcFile string, files []string, opts *Options) error {
	src, err := OpenImage(srcFile, opts)
	if err != nil {
		return err
	}
	clusterSize := src.fs.ClusterSize()
	extra, err := scanFileSizes(src.host, files, clusterSize)
	if err != nil {
		src.Close()
		return err
	}
	// room for the new root records
	extra += (len(files)*fat.RecordSize + clusterSize - 1) / clusterSize
	geometry := &fat.Config{
		ClusterSize: clusterSize,
		Clusters:    src.fs.TotalClusters() + extra,
	}
	if err := src.Close(); err != nil {
		return err
	}

	if err := RewriteImage(dstFile, srcFile, geometry, opts); err != nil {
		return err
	}
	dst, err := OpenImage(dstFile, opts)
	if err != nil {
		return err
	}
	defer dst.Close()
	root := dst.Root()
	return Each(files, func(filename string) error {
		_, err := dst.Import(root, filename, "", false)
		return err
	})
}

// return the clusters needed to hold the named host files
func scanFileSizes(host afero.Fs, filenames []string, clusterSize int) (int, error) {
	clusters := 0
	for _, filename := range filenames {
		info, err := host.Stat(filename)
		if err != nil {
			return 0, Fatal(err)
		}
		if info.IsDir() {
			return 0, Fatalf("not a file: %s", filepath.Clean(filename))
		}
		clusters += int((info.Size() + int64(clusterSize) - 1) / int64(clusterSize))
	}
	return clusters, nil
}

// rootRelative strips the drive from an absolute path, C:\A -> \A.
func rootRelative(path string) string {
	if i := strings.IndexByte(path, ':'); i >= 0 {
		return path[i+1:]
	}
	return path
}
