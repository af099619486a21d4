package mesh

import "strconv"

// NodeID is a non-owning handle to a node held by a network registry.
// The zero value never names a node.
type NodeID uint32

// NoNode is the zero handle.
const NoNode NodeID = 0

func (id NodeID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}
