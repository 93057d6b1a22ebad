package invalidation

import "github.com/google/uuid"

// generateOrigin returns a fresh random origin identifier, grounded on the
// rest of the retrieval pack's use of google/uuid for process/request
// identifiers (oriys-nova, sawpanic-cryptorun).
func generateOrigin() string {
	return uuid.NewString()
}
