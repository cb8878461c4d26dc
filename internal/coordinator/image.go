// =============================================================================
// METADATA IMAGE - IMMUTABLE CLUSTER TOPOLOGY SNAPSHOT
// =============================================================================

package coordinator

// MetadataImage is a point-in-time snapshot of cluster topology, handed to a
// shard when it finishes loading and whenever topology changes. Shards treat
// it as immutable.
type MetadataImage struct {
	// Version increases monotonically with each published image.
	Version int64

	// Topics maps topic name to its image. A topic missing from the map has
	// been deleted.
	Topics map[string]TopicImage
}

// TopicImage describes one topic in the snapshot.
type TopicImage struct {
	Name       string
	Partitions int32
}

// EmptyImage returns the zero snapshot used before any topology is known.
func EmptyImage() *MetadataImage {
	return &MetadataImage{Topics: map[string]TopicImage{}}
}

// HasTopic reports whether the snapshot contains the topic. Safe on nil.
func (m *MetadataImage) HasTopic(name string) bool {
	if m == nil {
		return false
	}
	_, ok := m.Topics[name]
	return ok
}
