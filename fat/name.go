package fat

import (
	"fmt"
	"strings"

	"github.com/rstms/minifat"
)

const (
	MaxBaseLen = 8
	MaxExtLen  = 3
	MaxNameLen = 11

	reservedChars = `\/:*?"<>|`
)

// CleanName trims surrounding whitespace from name and checks it against
// the 8.3 short-name rule. Case is preserved.
func CleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if err := checkName(name); err != nil {
		return "", minifat.NewError("name", name, err)
	}
	return name, nil
}

func checkName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", minifat.ErrInvalidName)
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: longer than %d characters", minifat.ErrInvalidName, MaxNameLen)
	}
	if name[0] == '.' {
		return fmt.Errorf("%w: starts with a dot", minifat.ErrInvalidName)
	}
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if ch <= ' ' || ch > '~' || strings.IndexByte(reservedChars, ch) >= 0 {
			return fmt.Errorf("%w: illegal character %q", minifat.ErrInvalidName, ch)
		}
	}
	base, ext, dotted := strings.Cut(name, ".")
	if dotted {
		if strings.Contains(ext, ".") {
			return fmt.Errorf("%w: more than one dot", minifat.ErrInvalidName)
		}
		if ext == "" {
			return fmt.Errorf("%w: empty extension", minifat.ErrInvalidName)
		}
		if len(ext) > MaxExtLen {
			return fmt.Errorf("%w: extension longer than %d", minifat.ErrInvalidName, MaxExtLen)
		}
	}
	if len(base) > MaxBaseLen {
		return fmt.Errorf("%w: base longer than %d", minifat.ErrInvalidName, MaxBaseLen)
	}
	return nil
}

// ValidName reports whether name is a legal short name as given.
func ValidName(name string) bool {
	return checkName(name) == nil
}

// HasExt reports whether name carries an extension.
func HasExt(name string) bool {
	i := strings.LastIndexByte(name, '.')
	return i > 0 && i < len(name)-1
}

// SameName compares names the way lookups do, ignoring case.
func SameName(a, b string) bool {
	return strings.EqualFold(a, b)
}

func isDot(name string) bool {
	return name == "." || name == ".."
}
