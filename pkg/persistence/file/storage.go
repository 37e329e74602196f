package file

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// readEntity loads one JSON file into dest. Returns (false, nil) when the
// file does not exist.
func readEntity(dir, id string, dest any) (bool, error) {
	filePath := filepath.Clean(path.Join(dir, id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	err = json.Unmarshal(body, dest)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", filePath, err)
	}

	return true, nil
}

// writeEntity marshals entity to dir/id.json, creating dir if needed.
func writeEntity(dir, id string, entity any) error {
	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(entity, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	return os.WriteFile(path.Join(dir, id+".json"), data, 0600)
}

// removeEntity deletes dir/id.json; a missing file is not an error.
func removeEntity(dir, id string) error {
	err := os.Remove(path.Join(dir, id+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}

	return nil
}

// listIDs returns the entity IDs stored under dir.
func listIDs(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	ids := make([]string, 0, len(jsonFiles))
	for _, file := range jsonFiles {
		ids = append(ids, file[:len(file)-5])
	}

	return ids, nil
}
