package analyses

import "context"

// Repo defines persistence operations for analyses.
type Repo interface {
	Create(ctx context.Context, analysis Analysis) error
	GetByID(ctx context.Context, analysisID string) (Analysis, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Analysis, error)
	SetFavorite(ctx context.Context, userID, analysisID string, favorite bool) (Analysis, error)
	Delete(ctx context.Context, userID, analysisID string) error
	// ClaimGuest moves a guest's analyses to userID and returns how many moved.
	ClaimGuest(ctx context.Context, guestUserID, userID string) (int, error)
}
