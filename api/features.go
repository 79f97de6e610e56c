// File: api/features.go
// Author: momentics <momentics@gmail.com>
//
// Startup-resolved capability descriptor. Computed once, then consulted by
// generic code instead of build-time switches.

package api

// VFSFeatures selects which optional storage kinds are available.
type VFSFeatures struct {
	Save        bool `yaml:"save"`
	Storage     bool `yaml:"storage"`
	GameContent bool `yaml:"game_content"`
	External    bool `yaml:"external"`
}

// Enabled reports whether devices of kind k may be registered.
func (f VFSFeatures) Enabled(k Kind) bool {
	switch k {
	case KindSave:
		return f.Save
	case KindStorage:
		return f.Storage
	case KindGameContent:
		return f.GameContent
	case KindExternal:
		return f.External
	case KindNone:
		return false
	}
	return true
}

// AllVFSFeatures enables every optional storage kind.
func AllVFSFeatures() VFSFeatures {
	return VFSFeatures{Save: true, Storage: true, GameContent: true, External: true}
}

// Features is the full descriptor for this build and platform.
type Features struct {
	OS            string
	SocketBackend string
	Socket        SocketCaps
	Poll          PollStrategy
	VFS           VFSFeatures
}
