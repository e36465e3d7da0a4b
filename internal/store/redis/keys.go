package redis

const (
	// KeyPrefixSynced is the prefix for keys in the synced scope
	// (identity, favorites cache, language preference).
	KeyPrefixSynced = "tabula:sync:"
	// KeyPrefixLocal is the prefix for keys strictly local to this device
	// (per-tab metadata, theme).
	KeyPrefixLocal = "tabula:local:"
)
