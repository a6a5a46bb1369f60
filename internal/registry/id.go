package registry

import "strconv"

// formatRoomID renders the NextID counter as a short decimal room ID.
func formatRoomID(n uint64) string {
	return "room-" + strconv.FormatUint(n, 10)
}
