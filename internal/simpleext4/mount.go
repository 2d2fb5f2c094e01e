package simpleext4

import (
	"fmt"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Mount opens the image at imagePath and serves it at mountPath until
// Unmount is called on the returned server. options may be nil to
// accept fs.Mount's defaults.
func Mount(imagePath, mountPath string, options *fs.Options) (*fuse.Server, *Volume, error) {
	vol, err := OpenVolume(imagePath)
	if err != nil {
		return nil, nil, err
	}

	root := RootNode(vol)
	server, err := fs.Mount(mountPath, root, options)
	if err != nil {
		vol.Unmount()
		return nil, nil, fmt.Errorf("simpleext4: mount %s: %w", mountPath, err)
	}

	vol.Mount()
	return server, vol, nil
}
