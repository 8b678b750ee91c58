package enum

import (
	"strings"

	"github.com/yanun0323/errors"
)

var ErrUnknownName = errors.New("enum: unknown name")

func marshalName(ok bool, name, kind string, raw uint8) ([]byte, error) {
	if !ok {
		return nil, errors.Wrapf(ErrUnknownName, "%s: %d", kind, raw)
	}
	return []byte(name), nil
}

// parseName matches case-insensitively; index 0 is the reserved begin sentinel.
func parseName(names []string, b []byte, kind string) (uint8, error) {
	s := strings.TrimSpace(string(b))
	for i := 1; i < len(names); i++ {
		if strings.EqualFold(names[i], s) {
			return uint8(i), nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownName, "%s: %q", kind, s)
}
