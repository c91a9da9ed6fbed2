// internal/handlers/export.go
package handlers

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// exportManifest is the metadata entry written at the root of the archive.
type exportManifest struct {
	Code       string      `json:"code"`
	Players    interface{} `json:"players"`
	Settings   interface{} `json:"settings"`
	ExportedAt string      `json:"exportedAt"`
}

// ExportHandler serves GET /rooms/{code}/export.zip: a ZIP archive with a
// manifest and one JSON file per owner's picture. The export works from a
// snapshot and never mutates room state.
func ExportHandler(logger *logrus.Logger, s *RoomServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(mux.Vars(r)["code"])
		room, ok := s.Rooms.Get(code)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "Room not found"})
			return
		}

		state := room.Snapshot()

		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="exquisite-%s.zip"`, code))

		archive := zip.NewWriter(w)
		defer func() {
			if err := archive.Close(); err != nil {
				logger.Errorf("failed to finalize export archive for room %s: %v", code, err)
			}
		}()

		manifest := exportManifest{
			Code:       state.Code,
			Players:    state.Players,
			Settings:   state.Settings,
			ExportedAt: time.Now().UTC().Format(time.RFC3339),
		}
		if err := writeJSONEntry(archive, "manifest.json", manifest); err != nil {
			logger.Errorf("failed to write manifest for room %s: %v", code, err)
			return
		}
		for ownerID, pic := range state.Pictures {
			name := fmt.Sprintf("pictures/%s.json", ownerID)
			if err := writeJSONEntry(archive, name, pic); err != nil {
				logger.Errorf("failed to write %s for room %s: %v", name, code, err)
				return
			}
		}
	}
}

func writeJSONEntry(archive *zip.Writer, name string, v interface{}) error {
	f, err := archive.Create(name)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	return err
}
