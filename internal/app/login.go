package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Qompa-Fi/banking-service/internal/domain"
	"github.com/Qompa-Fi/banking-service/pkg/prometeoclient"
)

// SessionKeyLength is the length of every well formed upstream session key.
const SessionKeyLength = 32

// LoginAPI is the part of the upstream client the login flow needs.
type LoginAPI interface {
	Login(ctx context.Context, req prometeoclient.LoginRequest) (*prometeoclient.LoginResponse, error)
	GetClients(ctx context.Context, key string) ([]domain.Client, error)
}

// LoginOrchestrator turns raw upstream login outcomes into sessions.
type LoginOrchestrator struct {
	api    LoginAPI
	logger zerolog.Logger
}

func NewLoginOrchestrator(api LoginAPI, logger zerolog.Logger) *LoginOrchestrator {
	return &LoginOrchestrator{
		api:    api,
		logger: logger.With().Str("component", "login").Logger(),
	}
}

// Login opens an upstream session for provider with creds. otp is only sent
// when a previous attempt asked for it.
func (o *LoginOrchestrator) Login(ctx context.Context, provider string, creds domain.Credentials, otp string) (*domain.Session, error) {
	resp, err := o.api.Login(ctx, prometeoclient.LoginRequest{
		Provider:       provider,
		Username:       creds.Username,
		Password:       creds.Password,
		Type:           creds.Type,
		DocumentNumber: creds.DocumentNumber,
		OTP:            otp,
	})
	if err != nil {
		return nil, translateUpstream(o.logger, "login", err)
	}

	switch resp.Status {
	case prometeoclient.StatusLoggedIn:
		o.checkKey(provider, resp.Key)
		return &domain.Session{Key: resp.Key, Requires: domain.RequiresNothing}, nil

	case prometeoclient.StatusSelectClient:
		o.checkKey(provider, resp.Key)
		clients, err := o.api.GetClients(ctx, resp.Key)
		if err != nil {
			return nil, translateUpstream(o.logger, "get_clients", err)
		}
		return &domain.Session{Key: resp.Key, Requires: domain.RequiresSpecifyClient, Clients: clients}, nil

	case prometeoclient.StatusInteractionRequired:
		switch resp.Field {
		case prometeoclient.FieldOTP:
			o.checkKey(provider, resp.Key)
			return &domain.Session{Key: resp.Key, Requires: domain.RequiresOTPCode}, nil
		case prometeoclient.FieldPersonalQuestions:
			return nil, ErrPersonalQuestionsUnsupported
		}
		o.logger.Error().Str("provider", provider).Str("field", resp.Field).Msg("unknown interaction requested by upstream")
		return nil, ErrSomethingWentWrong

	case prometeoclient.StatusWrongCredentials:
		return nil, ErrWrongCredentials

	case prometeoclient.StatusFailed:
		if resp.Message == "Unauthorized provider" {
			return nil, ErrUnauthorizedProvider
		}
		o.logger.Error().Str("provider", provider).Str("message", resp.Message).Msg("upstream login failed")
		return nil, ErrSomethingWentWrong
	}

	o.logger.Error().Str("provider", provider).Str("status", resp.Status).Msg("unexpected login status")
	return nil, ErrSomethingWentWrong
}

func (o *LoginOrchestrator) checkKey(provider, key string) {
	if len(key) != SessionKeyLength {
		o.logger.Warn().Str("provider", provider).Int("key_length", len(key)).Msg("upstream returned a session key of unexpected length")
	}
}
