package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	runtimeName = "pbcr"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the root state directory.
//
//	Linux:   $XDG_DATA_HOME/pbcr or ~/.local/share/pbcr
//	macOS:   ~/Library/Application Support/pbcr
func State() string {
	return filepath.Join(xdg.DataHome, runtimeName)
}

// Path to the content-addressed blob directory.
//
//	Linux:   ~/.local/share/pbcr/blobs
func Blobs() string {
	return filepath.Join(State(), "blobs")
}

// Path to the directory holding per-image metadata (manifests, configs).
//
//	Linux:   ~/.local/share/pbcr/images
func Images() string {
	return filepath.Join(State(), "images")
}

// Path to the directory holding container records and rootfs trees.
//
//	Linux:   ~/.local/share/pbcr/containers
func Containers() string {
	return filepath.Join(State(), "containers")
}
