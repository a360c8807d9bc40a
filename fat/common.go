// go-common local proxy functions

package fat

import (
	"github.com/rstms/go-common"
)

func Fatal(err error) error {
	return common.Fatal(err)
}

func Fatalf(format string, args ...interface{}) error {
	return common.Fatalf(format, args...)
}

// deviceError reports a host I/O failure on cluster c. These are the
// unrecoverable class: the disk image itself could not be read or written.
func deviceError(op string, c Cluster, err error) error {
	return Fatalf("%s cluster %d: %v", op, c, err)
}
