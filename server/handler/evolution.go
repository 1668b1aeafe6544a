package handler

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"lukechampine.com/blake3"
)

// EvolutionHandler は変異カタログを返します。カタログは不変なので、本文と ETag は生成時に1度だけ作ります。
type EvolutionHandler struct {
	body []byte
	etag string
}

func NewEvolutionHandler(catalog json.Marshaler) (*EvolutionHandler, error) {
	body, err := json.Marshal(catalog)
	if err != nil {
		return nil, fmt.Errorf("encode evolution catalog: %w", err)
	}
	sum := blake3.Sum256(body)
	return &EvolutionHandler{
		body: body,
		etag: `"` + hex.EncodeToString(sum[:16]) + `"`,
	}, nil
}

// ETag はカタログ本文のハッシュです。
func (h *EvolutionHandler) ETag() string { return h.etag }

func (h *EvolutionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("ETag", h.etag)
	w.Header().Set("Cache-Control", "public, max-age=0, must-revalidate")
	if matchesETag(r.Header.Get("If-None-Match"), h.etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(h.body)
}

func matchesETag(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
