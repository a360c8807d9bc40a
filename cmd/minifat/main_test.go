package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rstms/minifat"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

const testImage = "/disks/test.img"

// run executes one command line against hostFs. Persistent flags keep
// their values between executions, so each run resets them first.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	line := []string{args[0], "--image", testImage, "--cwd=", "--force=false"}
	line = append(line, args[1:]...)
	require.Nil(t, rdCmd.Flags().Set("recursive", "false"))
	rootCmd.SetArgs(line)
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(stdin))
	err := rootCmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, "", args...)
	require.Nil(t, err, strings.Join(args, " "))
	return out
}

func formatTestImage(t *testing.T) afero.Fs {
	hostFs = afero.NewMemMapFs()
	require.Nil(t, hostFs.MkdirAll("/disks", 0700))
	mustRun(t, "format", "--cluster-size", "512", "--clusters", "64")
	return hostFs
}

func TestCommandLifecycle(t *testing.T) {
	formatTestImage(t)

	out := mustRun(t, "info")
	require.Contains(t, out, "drive:    C:")
	require.Contains(t, out, "clusters: 64 of 512 B")

	mustRun(t, "md", "DOCS", `DOCS\OLD`)
	mustRun(t, "echo", `DOCS\readme`, `DOCS\NOTES.MD`)

	_, err := run(t, "hello from stdin", "write", `docs\readme.txt`)
	require.Nil(t, err)
	out = mustRun(t, "type", `C:\DOCS\README.TXT`)
	require.Equal(t, "hello from stdin", out)

	out = mustRun(t, "dir", "DOCS")
	require.Contains(t, out, "OLD")
	require.Contains(t, out, "<DIR>")
	require.Contains(t, out, "readme.txt")
	require.Contains(t, out, "NOTES.MD")

	out = mustRun(t, "cd", "docs/old/..")
	require.Equal(t, `C:\DOCS`+"\n", out)
	out = mustRun(t, "pwd", `--cwd=C:\DOCS\OLD`)
	require.Equal(t, `C:\DOCS\OLD`+"\n", out)

	out = mustRun(t, "copy", "readme.txt", "COPY.TXT", `--cwd=C:\DOCS`)
	require.Contains(t, out, "1 file(s) copied")
	out = mustRun(t, "type", `DOCS\COPY.TXT`)
	require.Equal(t, "hello from stdin", out)

	_, err = run(t, "", "copy", `DOCS\README.TXT`, `DOCS\COPY.TXT`)
	require.ErrorIs(t, err, minifat.ErrAlreadyExists)
	mustRun(t, "copy", `DOCS\README.TXT`, `DOCS\COPY.TXT`, "--force")

	mustRun(t, "rename", `DOCS\COPY.TXT`, "SECOND.TXT")
	_, err = run(t, "", "type", `DOCS\COPY.TXT`)
	require.ErrorIs(t, err, minifat.ErrNotFound)

	_, err = run(t, "", "rd", "DOCS")
	require.ErrorIs(t, err, minifat.ErrNotEmpty)

	mustRun(t, "del", "DOCS")
	out = mustRun(t, "tree")
	require.Equal(t, "d        0 C:\\DOCS\nd        0 C:\\DOCS\\OLD\n", out)

	mustRun(t, "rd", `DOCS\OLD`, "DOCS")
	out = mustRun(t, "dir")
	require.Contains(t, out, "0 entries")
}

func TestCommandImportExport(t *testing.T) {
	fs := formatTestImage(t)
	require.Nil(t, afero.WriteFile(fs, "/src/a.txt", []byte("aaa"), 0600))
	require.Nil(t, afero.WriteFile(fs, "/src/b.txt", []byte("bbb"), 0600))

	mustRun(t, "md", "IN")
	out := mustRun(t, "import", "/src", "IN")
	require.Contains(t, out, "2 file(s) imported")

	out = mustRun(t, "export", "IN", "/dst")
	require.Contains(t, out, "2 file(s) exported")
	data, err := afero.ReadFile(fs, "/dst/b.txt")
	require.Nil(t, err)
	require.Equal(t, "bbb", string(data))

	_, err = run(t, "", "export", `IN\a.txt`, "/dst")
	require.ErrorIs(t, err, minifat.ErrAlreadyExists)
}

func TestCommandRewrite(t *testing.T) {
	fs := formatTestImage(t)
	_, err := run(t, "payload", "write", "DATA.BIN")
	require.Nil(t, err)

	mustRun(t, "rewrite", "/disks/big.img", "--cluster-size", "1024", "--clusters", "128", "--drive", "d")
	info, err := fs.Stat("/disks/big.img")
	require.Nil(t, err)
	require.Equal(t, int64(128*1024), info.Size())

	out, err := run(t, "", "type", `D:\DATA.BIN`, "--image", "/disks/big.img")
	require.Nil(t, err)
	require.Equal(t, "payload", out)
}

func TestCommandMunge(t *testing.T) {
	fs := formatTestImage(t)
	_, err := run(t, "old", "write", "OLD.TXT")
	require.Nil(t, err)
	require.Nil(t, afero.WriteFile(fs, "/add/new.bin", bytes.Repeat([]byte("n"), 40*512), 0600))

	mustRun(t, "munge", "/disks/more.img", "/add/new.bin")
	out, err := run(t, "", "type", "OLD.TXT", "--image", "/disks/more.img")
	require.Nil(t, err)
	require.Equal(t, "old", out)
	out, err = run(t, "", "dir", "--image", "/disks/more.img")
	require.Nil(t, err)
	require.Contains(t, out, "new.bin")
}

func TestRemoveTree(t *testing.T) {
	formatTestImage(t)
	mustRun(t, "md", "A", `A\B`)
	mustRun(t, "echo", `A\B\C`)
	mustRun(t, "rd", "-r", "A")
	out := mustRun(t, "dir")
	require.Contains(t, out, "0 entries")
}

func TestWithDefaultExt(t *testing.T) {
	for name, want := range map[string]string{
		"readme":        "readme.txt",
		"README.MD":     "README.MD",
		`DOCS\notes`:    `DOCS\notes.txt`,
		`DOCS.D\notes`:  `DOCS.D\notes.txt`,
		"C:file":        "C:file.txt",
		`C:\A\LIST.DAT`: `C:\A\LIST.DAT`,
		"C:":            "C:",
		`DOCS\`:         `DOCS\`,
	} {
		require.Equal(t, want, withDefaultExt(name), name)
	}
}
