package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	apperrors "github.com/vistaflix/tvlink/internal/errors"
	"github.com/vistaflix/tvlink/internal/model"
	"github.com/vistaflix/tvlink/internal/repository"
	"github.com/vistaflix/tvlink/internal/xtream"
)

// PlaylistService links a streaming provider account to a user and serves the
// stream listings the TV app renders.
type PlaylistService struct {
	userRepo      repository.UserRepository
	provider      *xtream.Client
	encryptionKey string
}

func NewPlaylistService(userRepo repository.UserRepository, provider *xtream.Client, encryptionKey string) *PlaylistService {
	return &PlaylistService{
		userRepo:      userRepo,
		provider:      provider,
		encryptionKey: encryptionKey,
	}
}

// Link validates provider credentials and stores them on the user. The
// credentials are checked against the provider first so a typo never
// replaces a working subscription.
func (s *PlaylistService) Link(ctx context.Context, user *model.User, creds xtream.Credentials) error {
	ok, err := s.provider.ValidateCredentials(ctx, creds)
	if err != nil {
		return apperrors.UpstreamValidation(err)
	}
	if !ok {
		return apperrors.UpstreamValidation(fmt.Errorf("provider refused subscriber %s", creds.Username))
	}

	sealed, err := sealCredentials(s.encryptionKey, creds)
	if err != nil {
		return apperrors.Internal("Could not store credentials").WithCause(err)
	}

	if err := s.userRepo.UpdateXtreamCredentials(ctx, user.ID, creds.URL, sealed); err != nil {
		return apperrors.Database(err)
	}

	log.Info().Str("userId", user.ID).Msg("playlist linked")
	return nil
}

// Streams fetches the listing of the given kind using the user's stored
// credentials.
func (s *PlaylistService) Streams(ctx context.Context, user *model.User, kind xtream.StreamKind) (json.RawMessage, error) {
	if user.XtreamCredentials == nil {
		return nil, apperrors.NotFound("Playlist")
	}

	creds, err := openCredentials(s.encryptionKey, *user.XtreamCredentials)
	if err != nil {
		return nil, apperrors.Internal("Could not read stored credentials").WithCause(err)
	}

	body, err := s.provider.GetStreams(ctx, creds, kind)
	if err != nil {
		return nil, apperrors.UpstreamValidation(err)
	}
	return body, nil
}
