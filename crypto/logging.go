package crypto

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// previewLen is how many leading bytes of key material may appear in logs.
const previewLen = 8

// SecureFieldHash returns log fields describing sensitive data by a short
// prefix and its size, never the full value.
func SecureFieldHash(data []byte, name string) logrus.Fields {
	preview := "nil"
	if len(data) > 0 {
		n := previewLen
		if len(data) < n {
			n = len(data)
		}
		preview = fmt.Sprintf("%x", data[:n])
		if len(data) > n {
			preview += "..."
		}
	}

	return logrus.Fields{
		name + "_preview": preview,
		name + "_size":    len(data),
	}
}
