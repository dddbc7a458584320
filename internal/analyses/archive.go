package analyses

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"resume-tailor/internal/shared/storage/object"
	"resume-tailor/internal/shared/util"
)

// Archive keeps the untouched upstream payload of each analysis so results
// can be re-normalized after the display shape changes.
type Archive struct {
	store object.ObjectStore
}

// NewArchive returns an archive writing to store. A nil store disables archiving.
func NewArchive(store object.ObjectStore) *Archive {
	return &Archive{store: store}
}

// RawKey is the object key for an analysis payload.
func RawKey(userID, analysisID string) string {
	return fmt.Sprintf("raw/%s/%s.json", util.HashUserKey(userID), analysisID)
}

// Save stores raw and returns its key, or "" when archiving is disabled.
func (a *Archive) Save(ctx context.Context, userID, analysisID string, raw json.RawMessage) (string, error) {
	if a == nil || a.store == nil {
		return "", nil
	}
	key := RawKey(userID, analysisID)
	if _, err := a.store.Put(ctx, key, "application/json", bytes.NewReader(raw)); err != nil {
		return "", fmt.Errorf("archive raw result: %w", err)
	}
	return key, nil
}

// Load reads an archived payload.
func (a *Archive) Load(ctx context.Context, key string) (json.RawMessage, error) {
	if a == nil || a.store == nil || key == "" {
		return nil, ErrNotFound
	}
	rc, err := a.store.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open raw result: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read raw result: %w", err)
	}
	return data, nil
}
