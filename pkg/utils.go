package pkg

import (
	"io"
	"os"
	"path/filepath"

	"github.com/mitchellh/colorstring"
	"github.com/rotisserie/eris"
)

// ProjectMarker identifies the root of the Django project
const ProjectMarker = "manage.py"

// GetProjectRoot walks up from start until it finds a directory containing manage.py
func GetProjectRoot(start string) (string, error) {
	mypath, err := filepath.Abs(start)
	if err != nil {
		return "", eris.Wrapf(err, "Failed to resolve %s", start)
	}

	for {
		markerPath := filepath.Join(mypath, ProjectMarker)
		_, err := os.Stat(markerPath)
		if err == nil {
			return mypath, nil
		}

		if !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrap(err, "Error ocurred while searching for project root")
		}

		nextPath := filepath.Dir(mypath)
		if mypath == nextPath {
			break
		}
		mypath = nextPath
	}

	return "", eris.Errorf("Project root not found (no %s in %s or its parents)", ProjectMarker, start)
}

func PrintTask(w io.Writer, msg string) {
	colorstring.Fprintf(w, "[blue][bold]==>[default] %s\n", msg)
}

func PrintSubtask(w io.Writer, msg string) {
	colorstring.Fprintf(w, "[green][bold]  ->[reset] %s\n", msg)
}

func PrintError(w io.Writer, msg string) {
	colorstring.Fprintf(w, "[red][bold]  ->[reset] %s\n", msg)
}
