// Package storage is the disk backed file store for user uploads, community
// images and avatars. Files get random names and are served back verbatim
// from the static mount.
package storage

import (
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"emperror.dev/errors"
	"github.com/google/uuid"

	"github.com/commune-gg/commune/common"
	"github.com/commune-gg/commune/common/config"
)

var (
	confStorageDir     = config.RegisterOption("commune.storage_dir", "Directory uploads are stored in", "uploads")
	confStorageBaseURL = config.RegisterOption("commune.storage_base_url", "Public base URL uploads are served from", "/static/uploads")

	logger = common.GetPluginLogger(&Plugin{})
)

type Plugin struct{}

func (p *Plugin) PluginInfo() *common.PluginInfo {
	return &common.PluginInfo{
		Name:     "Storage",
		SysName:  "storage",
		Category: common.PluginCategoryMisc,
	}
}

func RegisterPlugin() {
	err := os.MkdirAll(confStorageDir.GetString(), 0755)
	if err != nil {
		logger.WithError(err).Error("Failed creating storage directory")
	}

	common.RegisterPlugin(&Plugin{})
}

var ErrBadExtension = errors.Sentinel("file type not allowed")

var allowedExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// Put stores the reader's contents under a fresh random name, keeping the
// original extension. Returns the stored name, feed it to PublicURL for the
// servable path.
func Put(originalName string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedExtensions[ext] {
		return "", ErrBadExtension
	}

	name := uuid.New().String() + ext

	f, err := os.Create(filepath.Join(confStorageDir.GetString(), name))
	if err != nil {
		return "", errors.WithStackIf(err)
	}
	defer f.Close()

	_, err = io.Copy(f, r)
	if err != nil {
		os.Remove(f.Name())
		return "", errors.WithStackIf(err)
	}

	return name, nil
}

// PublicURL maps a stored name to the path it is served from.
func PublicURL(name string) string {
	return path.Join(confStorageBaseURL.GetString(), name)
}
