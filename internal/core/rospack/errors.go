package rospack

import (
	"fmt"
	"strings"
)

// NotFoundError names the package and the roots that were searched.
type NotFoundError struct {
	Name  string
	Roots []string
}

func (e *NotFoundError) Error() string {
	if len(e.Roots) == 0 {
		return fmt.Sprintf("%s: %s (no search roots, is %s set?)", ErrPackageNotFound, e.Name, EnvPackagePath)
	}
	return fmt.Sprintf("%s: %s (searched %s)", ErrPackageNotFound, e.Name, strings.Join(e.Roots, ", "))
}

func (e *NotFoundError) Unwrap() error { return ErrPackageNotFound }
