// Copyright 2026 Teyda Authors

package onebot

// Implementation identity reported by get_version and meta.connect.
const (
	Impl            = "teyda"
	ImplVersion     = "0.2.0"
	ProtocolVersion = "12"
)

// VersionInfo returns the implementation identity payload.
func VersionInfo() *Version {
	return &Version{
		Impl:          Impl,
		Version:       ImplVersion,
		OneBotVersion: ProtocolVersion,
	}
}
