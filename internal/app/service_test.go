package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Qompa-Fi/banking-service/internal/domain"
)

func TestSetupDirectory_SandboxLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.service.SetupDirectory(ctx, testUserID, domain.SetupDirectoryInput{
		Name:         strPtr("  Main account  "),
		ProviderName: domain.SandboxProvider,
		Credentials:  domain.Credentials{Username: "12345678", Password: "gfdsa"},
	})
	require.NoError(t, err)
	require.NotNil(t, created.Name)
	assert.Equal(t, "Main account", *created.Name)
	assert.Equal(t, domain.SandboxProvider, created.ProviderName)
	assert.NotContains(t, created.EncryptedCredentials, "gfdsa")
	assert.Equal(t, 0, env.api.count("list_providers"), "sandbox provider must not touch the catalog")

	list, err := env.service.ListDirectories(ctx, testUserID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	count, err := env.service.CountDirectories(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, env.service.DeleteDirectory(ctx, testUserID, created.ID))
	count, err = env.service.CountDirectories(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.Len(t, env.events.events, 2)
	assert.Equal(t, domain.DirectoryCreatedRoutingKey, env.events.events[0].Type)
	assert.Equal(t, domain.DirectoryDeletedRoutingKey, env.events.events[1].Type)
	assert.Equal(t, created.ID, env.events.events[1].DirectoryID)
}

func TestSetupDirectory_StoredCredentialsRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	d := env.createSandboxDirectory(t, testUserID)

	stored, err := env.repo.FindDirectory(context.Background(), testUserID, d.ID)
	require.NoError(t, err)

	creds, err := env.service.decryptCredentials(stored)
	require.NoError(t, err)
	assert.Equal(t, domain.Credentials{Username: "12345678", Password: "gfdsa"}, creds)
}

func TestSetupDirectory_NameRules(t *testing.T) {
	tests := []struct {
		name     string
		input    *string
		wantName *string
		wantErr  error
	}{
		{name: "absent", input: nil, wantName: nil},
		{name: "blank becomes absent", input: strPtr("   "), wantName: nil},
		{name: "three characters", input: strPtr("abc"), wantErr: ErrNameTooShort},
		{name: "four characters", input: strPtr("abcd"), wantName: strPtr("abcd")},
		{name: "four multibyte characters", input: strPtr("ñañá"), wantName: strPtr("ñañá")},
		{name: "ninety characters", input: strPtr(strings.Repeat("a", 90)), wantName: strPtr(strings.Repeat("a", 90))},
		{name: "ninety one characters", input: strPtr(strings.Repeat("a", 91)), wantErr: ErrNameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			d, err := env.service.SetupDirectory(context.Background(), testUserID, domain.SetupDirectoryInput{
				Name:         tt.input,
				ProviderName: domain.SandboxProvider,
				Credentials:  domain.Credentials{Username: "12345678", Password: "gfdsa"},
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 0, env.users.calls)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, d.Name)
		})
	}
}

func TestSetupDirectory_RejectsInvalidInputBeforeSideEffects(t *testing.T) {
	tests := []struct {
		name  string
		input domain.SetupDirectoryInput
	}{
		{
			name:  "provider name too short",
			input: domain.SetupDirectoryInput{ProviderName: "ab", Credentials: domain.Credentials{Username: "user", Password: "pass"}},
		},
		{
			name:  "password too short",
			input: domain.SetupDirectoryInput{ProviderName: domain.SandboxProvider, Credentials: domain.Credentials{Username: "12345678", Password: "abc"}},
		},
		{
			name:  "missing username",
			input: domain.SetupDirectoryInput{ProviderName: domain.SandboxProvider, Credentials: domain.Credentials{Password: "gfdsa"}},
		},
		{
			name: "field not declared by provider",
			input: domain.SetupDirectoryInput{ProviderName: domain.SandboxProvider, Credentials: domain.Credentials{
				Username: "12345678", Password: "gfdsa", DocumentNumber: "12345678",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.service.SetupDirectory(context.Background(), testUserID, tt.input)

			var svcErr *Error
			require.True(t, errors.As(err, &svcErr), "got %v", err)
			assert.Equal(t, KindInvalidArgument, svcErr.Kind)
			assert.Equal(t, 0, env.users.calls)
			assert.Empty(t, env.events.events)
		})
	}
}

func TestSetupDirectory_CatalogProviderRequiresDeclaredFields(t *testing.T) {
	env := newTestEnv(t)
	env.api.listProvidersFn = func() ([]domain.ProviderSummary, error) {
		return []domain.ProviderSummary{{Code: "interbank_corp", Country: "PE"}}, nil
	}
	env.api.getProviderFn = func(code string) (*domain.Provider, error) {
		return &domain.Provider{Name: code, Country: "PE", AuthFields: []domain.AuthField{
			{Name: "username"},
			{Name: "password"},
			{Name: "document_number"},
			{Name: "otp", Interactive: true},
		}}, nil
	}
	ctx := context.Background()

	_, err := env.service.SetupDirectory(ctx, testUserID, domain.SetupDirectoryInput{
		ProviderName: "interbank_corp",
		Credentials:  domain.Credentials{Username: "user", Password: "pass"},
	})
	assert.EqualError(t, err, "document_number is required by provider 'interbank_corp'")

	d, err := env.service.SetupDirectory(ctx, testUserID, domain.SetupDirectoryInput{
		ProviderName: "interbank_corp",
		Credentials:  domain.Credentials{Username: "user", Password: "pass", DocumentNumber: "20123456789"},
	})
	require.NoError(t, err)
	assert.Equal(t, "interbank_corp", d.ProviderName)
	assert.Equal(t, 1, env.api.count("list_providers"), "catalog is cached between calls")
}

func TestSetupDirectory_UnknownProvider(t *testing.T) {
	env := newTestEnv(t)
	env.api.listProvidersFn = func() ([]domain.ProviderSummary, error) {
		return []domain.ProviderSummary{{Code: "bcp_corp", Country: "PE"}}, nil
	}
	env.api.getProviderFn = func(code string) (*domain.Provider, error) {
		return &domain.Provider{Name: code, Country: "PE"}, nil
	}

	_, err := env.service.SetupDirectory(context.Background(), testUserID, domain.SetupDirectoryInput{
		ProviderName: "nope_corp",
		Credentials:  domain.Credentials{Username: "user", Password: "pass"},
	})
	assert.EqualError(t, err, "no provider found with name 'nope_corp'")
	assert.Equal(t, 0, env.users.calls)
}

func TestSetupDirectory_IssuerNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.users.exists = false

	_, err := env.service.SetupDirectory(context.Background(), testUserID, domain.SetupDirectoryInput{
		ProviderName: domain.SandboxProvider,
		Credentials:  domain.Credentials{Username: "12345678", Password: "gfdsa"},
	})
	assert.ErrorIs(t, err, ErrIssuerNotFound)

	count, err := env.service.CountDirectories(context.Background(), testUserID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSetupDirectory_UserLookupFailure(t *testing.T) {
	env := newTestEnv(t)
	env.users.err = errors.New("connection refused")

	_, err := env.service.SetupDirectory(context.Background(), testUserID, domain.SetupDirectoryInput{
		ProviderName: domain.SandboxProvider,
		Credentials:  domain.Credentials{Username: "12345678", Password: "gfdsa"},
	})
	assert.ErrorIs(t, err, ErrSomethingWentWrong)
}

func TestSetupDirectory_PublishFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t)
	env.events.err = errors.New("channel closed")

	d := env.createSandboxDirectory(t, testUserID)
	assert.NotEqual(t, uuid.Nil, d.ID)
}

func TestRenameDirectory_Boundaries(t *testing.T) {
	tests := []struct {
		name    string
		input   *string
		want    *string
		wantErr error
	}{
		{name: "three", input: strPtr("abc"), wantErr: ErrNameTooShort},
		{name: "four", input: strPtr("abcd"), want: strPtr("abcd")},
		{name: "ninety", input: strPtr(strings.Repeat("z", 90)), want: strPtr(strings.Repeat("z", 90))},
		{name: "ninety one", input: strPtr(strings.Repeat("z", 91)), wantErr: ErrNameTooLong},
		{name: "clear", input: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			d := env.createSandboxDirectory(t, testUserID)

			renamed, err := env.service.RenameDirectory(context.Background(), testUserID, d.ID, tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, renamed.Name)
			assert.NotNil(t, renamed.UpdatedAt)
		})
	}
}

func TestDirectories_AreScopedToTheirOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.createSandboxDirectory(t, testUserID)
	const otherUser = int64(202)

	assert.ErrorIs(t, env.service.DeleteDirectory(ctx, otherUser, d.ID), ErrDirectoryNotFound)

	_, err := env.service.RenameDirectory(ctx, otherUser, d.ID, strPtr("stolen"))
	assert.ErrorIs(t, err, ErrDirectoryNotFound)

	list, err := env.service.ListDirectories(ctx, otherUser)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = env.service.ListAccounts(ctx, otherUser, d.ID, "")
	assert.ErrorIs(t, err, ErrDirectoryNotFound)

	count, err := env.service.CountDirectories(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteDirectory_EvictsCachedSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.createSandboxDirectory(t, testUserID)
	env.sessions.Put(ctx, testUserID, d.ID, validKey, env.service.sessionTTL)

	require.NoError(t, env.service.DeleteDirectory(ctx, testUserID, d.ID))

	_, ok := env.sessions.Get(ctx, testUserID, d.ID)
	assert.False(t, ok)
}

func TestPurgeUserDirectories(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.createSandboxDirectory(t, testUserID)
	second := env.createSandboxDirectory(t, testUserID)
	other := env.createSandboxDirectory(t, 303)
	env.sessions.Put(ctx, testUserID, first.ID, validKey, env.service.sessionTTL)
	env.sessions.Put(ctx, 303, other.ID, rotatedKey, env.service.sessionTTL)

	deleted, err := env.service.PurgeUserDirectories(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, ok := env.sessions.Get(ctx, testUserID, first.ID)
	assert.False(t, ok)
	_, ok = env.sessions.Get(ctx, testUserID, second.ID)
	assert.False(t, ok)
	_, ok = env.sessions.Get(ctx, 303, other.ID)
	assert.True(t, ok, "other users keep their sessions")

	count, err := env.service.CountDirectories(ctx, 303)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
