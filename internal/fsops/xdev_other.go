//go:build !unix

package fsops

// isCrossDevice always reports false; os.Rename on these platforms already
// copies across volumes or fails outright.
func isCrossDevice(err error) bool {
	return false
}
