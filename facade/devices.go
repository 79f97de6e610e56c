// File: facade/devices.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Configured device list to registry entries.

package facade

import (
	"io"
	"io/fs"
	"os"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/momentics/hioload-ftp/api"
	"github.com/momentics/hioload-ftp/control"
	"github.com/momentics/hioload-ftp/vfs"
	"github.com/momentics/hioload-ftp/vfs/contentfs"
	"github.com/momentics/hioload-ftp/vfs/extfs"
	"github.com/momentics/hioload-ftp/vfs/nativefs"
	"github.com/momentics/hioload-ftp/vfs/savefs"
	"github.com/momentics/hioload-ftp/vfs/stdiofs"
	"github.com/momentics/hioload-ftp/vfs/storagefs"
)

// openDevices opens a backend for every enabled device. Disabled devices
// are returned without a backend so the registry logs the skip.
func openDevices(list []control.DeviceConfig, feats api.VFSFeatures, log *zap.Logger) ([]vfs.Device, error) {
	devs := make([]vfs.Device, 0, len(list))
	for _, dc := range list {
		kind, err := dc.DeviceKind()
		if err != nil {
			closeDevices(devs, log)
			return nil, api.NewError(api.CodeInvalidArgument, "facade.open_device", dc.Name, err)
		}
		d := vfs.Device{Name: dc.Name, Kind: kind}
		if feats.Enabled(kind) {
			if d.Backend, err = openBackend(kind, dc); err != nil {
				closeDevices(devs, log)
				return nil, api.WithOp(err, "facade.open_device", dc.Name)
			}
		}
		devs = append(devs, d)
	}
	return devs, nil
}

func openBackend(kind api.Kind, dc control.DeviceConfig) (vfs.Backend, error) {
	switch kind {
	case api.KindFS:
		return nativefs.New(dc.Path, nativefs.WithReadOnly(dc.ReadOnly))
	case api.KindSave:
		return savefs.Open(dc.Path, savefs.WithWritable(!dc.ReadOnly))
	case api.KindStorage:
		return storagefs.OpenImages(dc.Parts)
	case api.KindGameContent:
		parts := make(map[string]fs.FS, len(dc.Parts))
		for name, dir := range dc.Parts {
			parts[name] = os.DirFS(dir)
		}
		return contentfs.New(parts)
	case api.KindStdio:
		return stdiofs.New(afero.NewBasePathFs(afero.NewOsFs(), dc.Path), stdiofs.WithReadOnly(dc.ReadOnly)), nil
	case api.KindExternal:
		return extfs.New(extfs.MountDir(dc.Path), stdiofs.WithReadOnly(dc.ReadOnly)), nil
	}
	return nil, api.NewError(api.CodeNotSupported, "facade.open_device", dc.Name, nil)
}

func closeDevices(devs []vfs.Device, log *zap.Logger) {
	for _, d := range devs {
		if c, ok := d.Backend.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Warn("device close failed", zap.String("device", d.Name), zap.Error(err))
			}
		}
	}
}
