package db

import "errors"

var ErrNotFound = errors.New("not found")

func IgnoreErrNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// IsNotFound reports whether err is a missing row, so callers may fall back to defaults.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
