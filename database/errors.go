package database

import (
	"errors"
	"regexp"

	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var (
	// ErrUnsupportedFetchMode is returned by the fetch calls for a mode that is
	// not one of the FetchMode constants. The cursor is not moved.
	ErrUnsupportedFetchMode = errors.New("database: unsupported fetch mode")
	// ErrUnsupportedOrientation is returned by FetchWith for any orientation
	// other than OrientNext.
	ErrUnsupportedOrientation = errors.New("database: unsupported fetch orientation")
)

// ErrorClassifier decides whether an engine error is a uniqueness violation.
type ErrorClassifier interface {
	IsUniqueViolation(err error) bool
}

// uniqueViolationMessage covers the phrasings of old and current SQLite
// versions. Remote errors only carry the message, so this is the fallback for
// every error without a structured code.
var uniqueViolationMessage = regexp.MustCompile(`(?i)(column(s)? .* (is|are) not unique|UNIQUE constraint failed: .*)`)

// SQLiteClassifier reads the extended result code from either local driver
// and falls back to matching the message text.
type SQLiteClassifier struct{}

func (SQLiteClassifier) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var cgoErr sqlite3.Error
	if errors.As(err, &cgoErr) {
		return cgoErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			cgoErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pureErr *sqlite.Error
	if errors.As(err, &pureErr) {
		return pureErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE ||
			pureErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return MessageClassifier{}.IsUniqueViolation(err)
}

// MessageClassifier only looks at the error text.
type MessageClassifier struct{}

func (MessageClassifier) IsUniqueViolation(err error) bool {
	return err != nil && uniqueViolationMessage.MatchString(err.Error())
}
