package dicom

import (
	"math/big"

	"github.com/google/uuid"
)

// NewUID generates a unique DICOM UID under the 2.25 UUID-derived root.
func NewUID() string {
	id := uuid.New()
	n := new(big.Int).SetBytes(id[:])
	return "2.25." + n.String()
}
