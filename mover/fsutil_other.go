//go:build !unix && !windows

package mover

func isCrossDevice(error) bool {
	return false
}

func isSharingViolation(error) bool {
	return false
}
