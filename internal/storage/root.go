package storage

import (
	"os"
	"path/filepath"
)

// moduleDirName is the conventional checkout subdirectory searched when the
// configured upload dir is relative and does not exist under the working
// directory.
const moduleDirName = "image-back-server"

// ResolveRoot turns the configured upload directory into an absolute path.
// Absolute inputs are returned as-is without checking existence; later
// writes fail loudly if the directory is unusable. Relative inputs prefer
// whichever of the working-directory candidate and the module-directory
// candidate already exists, defaulting to the working-directory candidate.
func ResolveRoot(configured string) string {
	cleaned := filepath.Clean(configured)
	if filepath.IsAbs(cleaned) {
		return cleaned
	}

	workingDirCandidate, err := filepath.Abs(cleaned)
	if err != nil {
		return cleaned
	}
	moduleDirCandidate, err := filepath.Abs(filepath.Join(moduleDirName, cleaned))
	if err != nil {
		return workingDirCandidate
	}

	if dirExists(workingDirCandidate) {
		return workingDirCandidate
	}
	if dirExists(moduleDirCandidate) {
		return moduleDirCandidate
	}
	return workingDirCandidate
}

func dirExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
