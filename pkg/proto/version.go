package proto

// Protocol version constants (spec.md §6, with the §9 open-question
// fix applied: SUPPORTED is the inclusive range 2..=CURRENT, not the
// degenerate CURRENT..=STABLE the original source declared).
const (
	MinSupportedVersion = 2
	Stable              = 7
	Current             = 7
	NewAuthProtocol     = 6
	EncryptedProtocol   = 7
)

// Supported reports whether v is within the supported protocol range.
func Supported(v uint32) bool {
	return v >= MinSupportedVersion && v <= Current
}

// versionNames maps protocol version -> human-readable release name,
// per spec.md §6.
var versionNames = map[uint32]string{
	2: "0.3.2",
	3: "0.3.4",
	4: "0.4.3",
	5: "0.4.4",
	6: "0.4.14",
	7: "0.5.0",
}

// VersionName returns the human-readable name for v, or "" if v is
// not a known protocol version.
func VersionName(v uint32) string {
	return versionNames[v]
}
