package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// partitionLayout is the calendar partition under the storage root. All
// artifacts created on the same server date share one directory.
const partitionLayout = "2006/01/02"

// defaultExtension is applied to extensionless uploads. The upload is
// decoded and re-encoded regardless, so a canonical default format is safe.
const defaultExtension = ".jpg"

// eagerSize is one of the fixed derived resolutions written at store time.
type eagerSize struct {
	Tag    string
	Width  int
	Height int
}

var eagerSizes = []eagerSize{
	{Tag: "thumb", Width: 150, Height: 150},
	{Tag: "small", Width: 320, Height: 240},
	{Tag: "medium", Width: 640, Height: 480},
	{Tag: "large", Width: 1024, Height: 768},
}

func newImageID() string {
	return uuid.New().String()
}

func partitionFor(now time.Time) string {
	return now.Format(partitionLayout)
}

// splitExt splits a filename at its last dot; the extension keeps the
// leading dot and is empty when no dot is present.
func splitExt(filename string) (base, ext string) {
	dot := strings.LastIndex(filename, ".")
	if dot < 0 {
		return filename, ""
	}
	return filename[:dot], filename[dot:]
}

// taggedName is the file name of an eager variant: {id}_{tag}{ext}.
func taggedName(base, tag, ext string) string {
	return base + "_" + tag + ext
}

// sizedName is the file name of a lazily generated variant:
// {base}_{width}x{height}{ext}. It is a pure function of the original name
// and the requested geometry, so callers re-derive it instead of storing it.
func sizedName(base, ext string, width, height int) string {
	return fmt.Sprintf("%s_%dx%d%s", base, width, height, ext)
}
