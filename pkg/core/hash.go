package core

import "hash/fnv"

// Hash returns the stable 32-bit hash of a serialized key. Both the pipeline
// side and the query client must use this function so a key lands in the same
// key group on either side.
func Hash(key []byte) uint32 {
	hash := fnv.New32a()
	hash.Write(key)
	return hash.Sum32()
}

// KeyGroup assigns a serialized key to one of numKeyGroups groups.
func KeyGroup(key []byte, numKeyGroups int) int {
	return KeyGroupForHash(Hash(key), numKeyGroups)
}

// KeyGroupForHash assigns a precomputed key hash to a key group.
func KeyGroupForHash(hash uint32, numKeyGroups int) int {
	if numKeyGroups <= 0 {
		return 0
	}
	return int(hash % uint32(numKeyGroups))
}
