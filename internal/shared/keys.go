package shared

import "fmt"

// SelectionKey builds the redis key holding a working lot selection.
func SelectionKey(selectionID string) string {
	return fmt.Sprintf("lots:selection:%s", selectionID)
}
