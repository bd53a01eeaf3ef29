package blob

import "fmt"

// RunArtifactKey returns the canonical storage key for an artifact produced
// by a measurement run. The key is what gets attached to the run record.
func RunArtifactKey(runID, name string) string {
	return fmt.Sprintf("runs/%s/%s", runID, name)
}
