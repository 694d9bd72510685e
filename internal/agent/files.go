package agent

import (
	"encoding/json"
	"mime"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/loomlabs/loom/pkg/models"
)

// fileProducingTools are the tools whose results can declare new files.
var fileProducingTools = map[string]bool{
	"execute_code": true,
	"bash":         true,
	"write":        true,
}

// harvestOutputFiles parses a tool result for declared new files and returns
// OutputFile records for paths not seen before. seen is updated in place.
func harvestOutputFiles(toolName, content string, seen map[string]bool) []models.OutputFile {
	if !fileProducingTools[toolName] {
		return nil
	}
	var payload struct {
		NewFiles []string `json:"new_files"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil
	}

	var out []models.OutputFile
	for _, path := range payload.NewFiles {
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		out = append(out, newOutputFile(path))
	}
	return out
}

func newOutputFile(path string) models.OutputFile {
	file := models.OutputFile{
		FileID:      uuid.NewString(),
		Filename:    filepath.Base(path),
		Path:        path,
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
	}
	if info, err := os.Stat(path); err == nil {
		file.Size = info.Size()
	}
	return file
}
