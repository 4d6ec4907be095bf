package button

import "fmt"

// parseLevel decodes the contents of a sysfs GPIO value file ("0\n" or "1\n").
func parseLevel(b []byte) (bool, error) {
	if len(b) == 0 {
		return false, fmt.Errorf("empty gpio value")
	}
	switch b[0] {
	case '0':
		return false, nil
	case '1':
		return true, nil
	default:
		return false, fmt.Errorf("unexpected gpio value %q", b)
	}
}
