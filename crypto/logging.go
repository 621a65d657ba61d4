package crypto

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// logEntry returns a logrus entry carrying the package and function fields.
func logEntry(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function": function,
		"package":  "crypto",
	})
}

// SecureFieldHash returns a short hex preview of sensitive data for logging.
// At most the first 8 bytes are shown.
func SecureFieldHash(data []byte, name string) logrus.Fields {
	preview := "nil"
	if len(data) > 0 {
		previewLen := 8
		if len(data) < previewLen {
			previewLen = len(data)
		}
		preview = fmt.Sprintf("%x", data[:previewLen])
		if len(data) > previewLen {
			preview += "..."
		}
	}

	return logrus.Fields{
		name + "_preview": preview,
		name + "_size":    len(data),
	}
}

// KeyPreview formats the first bytes of a public key for log fields.
func KeyPreview(public [32]byte) string {
	return fmt.Sprintf("%x", public[:8])
}
