package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// Storage holds question-bank workbooks uploaded for import. Keys may be
// given bare or as s3://bucket/key.
type Storage interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, data io.Reader) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

const workbookExt = ".xlsx"

// IsWorkbook reports whether name looks like an importable workbook.
func IsWorkbook(name string) bool {
	return strings.EqualFold(path.Ext(name), workbookExt)
}

// WorkbookKey is where an uploaded workbook for bookID is kept until the
// import job identified by jobID has consumed it.
func WorkbookKey(bookID int64, jobID string) string {
	return fmt.Sprintf("imports/books/%d/%s%s", bookID, jobID, workbookExt)
}
