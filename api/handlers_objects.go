package api

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"idx-flow/storage"
)

// Only pipeline outputs are served.
var objectPrefixes = []string{"series/", "orderflow/", "accumulation/", "inventory/"}

func allowedKey(key string) bool {
	for _, p := range objectPrefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if !allowedKey(prefix) {
		respondWithError(w, http.StatusBadRequest, "prefix must start with one of "+strings.Join(objectPrefixes, ", "), nil)
		return
	}

	keys, err := s.objects.List(r.Context(), prefix)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list objects", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"prefix": prefix,
		"keys":   keys,
		"count":  len(keys),
	})
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !allowedKey(key) || path.Clean(key) != key {
		respondWithError(w, http.StatusBadRequest, "invalid key", nil)
		return
	}

	data, err := s.objects.Get(r.Context(), key)
	if err != nil {
		var notFound *storage.NotFoundError
		if errors.As(err, &notFound) {
			respondWithError(w, http.StatusNotFound, "object not found", nil)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "failed to read object", err)
		return
	}

	contentType := storage.ContentTypeCSV
	if strings.HasSuffix(key, ".json") {
		contentType = storage.ContentTypeJSON
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}
