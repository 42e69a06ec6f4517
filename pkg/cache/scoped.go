package cache

// ScopedKeyer wraps a Keyer with a prefix, so several deployments or
// tenants can share one redis without their entries colliding.
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "studio-a:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// TranscodeKey generates a prefixed transcode key.
func (k *ScopedKeyer) TranscodeKey(sourceHash string, opts TranscodeKeyOpts) string {
	return k.prefix + k.inner.TranscodeKey(sourceHash, opts)
}

// ArtifactKey generates a prefixed artifact key.
func (k *ScopedKeyer) ArtifactKey(sequenceHash string, opts ArtifactKeyOpts) string {
	return k.prefix + k.inner.ArtifactKey(sequenceHash, opts)
}
