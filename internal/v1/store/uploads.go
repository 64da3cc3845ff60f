package store

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/openrooms/orc-server/internal/v1/apierr"
	"github.com/openrooms/orc-server/internal/v1/metrics"
	"github.com/openrooms/orc-server/internal/v1/types"
)

// Upload is the metadata for one content-addressed blob.
type Upload struct {
	CID       types.CidType `json:"cid"`
	Bytes     int64         `json:"bytes"`
	MIME      string        `json:"mime"`
	SHA256    string        `json:"sha256"`
	CreatedAt string        `json:"created_at"`
}

// PutBlob stores a blob and returns its metadata. Blobs are deduplicated by
// content identifier; re-uploading returns the existing metadata.
func (s *Store) PutBlob(data []byte, mimeHint string) (Upload, error) {
	if int64(len(data)) > s.maxUploadBytes {
		return Upload{}, apierr.PayloadTooLarge("upload exceeds %d bytes", s.maxUploadBytes)
	}
	if len(data) == 0 {
		return Upload{}, apierr.BadRequest("empty upload")
	}

	// Hash outside the lock; uploads can be large.
	sum := sha256.Sum256(data)
	cid := types.CID(data)
	mime := mimeHint
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.uploadsByCID[cid]; ok {
		return *existing, nil
	}
	up := &Upload{
		CID:       cid,
		Bytes:     int64(len(data)),
		MIME:      mime,
		SHA256:    hex.EncodeToString(sum[:]),
		CreatedAt: types.FormatTime(s.clock.Now()),
	}
	s.uploadsByCID[cid] = up
	s.blobsByCID[cid] = append([]byte(nil), data...)
	metrics.UploadBytes.Observe(float64(len(data)))
	return *up, nil
}

// GetBlob returns the mime type and bytes for a stored blob.
func (s *Store) GetBlob(cid types.CidType) (string, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	up, ok := s.uploadsByCID[cid]
	if !ok {
		return "", nil, apierr.NotFound("no blob with cid %s", cid)
	}
	return up.MIME, s.blobsByCID[cid], nil
}

// StatBlob returns upload metadata without the bytes.
func (s *Store) StatBlob(cid types.CidType) (Upload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	up, ok := s.uploadsByCID[cid]
	if !ok {
		return Upload{}, apierr.NotFound("no blob with cid %s", cid)
	}
	return *up, nil
}
