// Package persistence provides database adapters.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"booking_server/core/port/out"
	"booking_server/pkg/apperr"
	"booking_server/pkg/crypto"
	"booking_server/pkg/logger"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

var _ out.CredentialSource = (*CredentialAdapter)(nil)

// refreshSkew refreshes tokens slightly before they expire.
const refreshSkew = 5 * time.Minute

// CredentialAdapter reads provider tokens stored by the OAuth collaborator and keeps them fresh.
type CredentialAdapter struct {
	db           *sqlx.DB
	oauthConfig  *oauth2.Config
	provider     string
	cipher       *crypto.TokenCipher
	refreshGroup singleflight.Group
}

// NewCredentialAdapter creates a new CredentialAdapter. oauthConfig may be nil, in which case
// expired tokens are reported as AUTHORIZATION_EXPIRED instead of refreshed.
// A nil cipher stores tokens in plaintext.
func NewCredentialAdapter(db *sqlx.DB, oauthConfig *oauth2.Config, provider string, cipher *crypto.TokenCipher) *CredentialAdapter {
	if cipher == nil {
		logger.Warn("Token encryption disabled for %s", provider)
	}
	return &CredentialAdapter{
		db:          db,
		oauthConfig: oauthConfig,
		provider:    provider,
		cipher:      cipher,
	}
}

type credentialRow struct {
	BusinessID   uuid.UUID      `db:"business_id"`
	AccessToken  string         `db:"access_token"`
	RefreshToken sql.NullString `db:"refresh_token"`
	TokenType    sql.NullString `db:"token_type"`
	ExpiresAt    sql.NullTime   `db:"expires_at"`
	Revoked      bool           `db:"revoked"`
}

func (a *CredentialAdapter) encryptToken(token string) string {
	sealed, err := a.cipher.Seal(token)
	if err != nil {
		logger.Warn("Failed to encrypt token: %v", err)
		return token
	}
	return sealed
}

// decryptToken passes legacy plaintext rows through.
func (a *CredentialAdapter) decryptToken(token string) string {
	if a.cipher == nil || !crypto.LooksSealed(token) {
		return token
	}
	plain, err := a.cipher.Open(token)
	if err != nil {
		return token
	}
	return plain
}

func (r *credentialRow) toToken(decrypt func(string) string) *oauth2.Token {
	token := &oauth2.Token{AccessToken: decrypt(r.AccessToken)}
	if r.RefreshToken.Valid {
		token.RefreshToken = decrypt(r.RefreshToken.String)
	}
	if r.TokenType.Valid {
		token.TokenType = r.TokenType.String
	}
	if r.ExpiresAt.Valid {
		token.Expiry = r.ExpiresAt.Time
	}
	return token
}

// Token returns a usable token, refreshing and persisting it when it is about to expire.
func (a *CredentialAdapter) Token(ctx context.Context, businessID uuid.UUID) (*oauth2.Token, error) {
	query := `
		SELECT business_id, access_token, refresh_token, token_type, expires_at, revoked
		FROM calendar_credentials
		WHERE business_id = $1 AND provider = $2`

	var row credentialRow
	if err := a.db.QueryRowxContext(ctx, query, businessID, a.provider).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.AuthorizationExpired(a.provider, errors.New("no stored credential"))
		}
		return nil, apperr.DatabaseError("get credential", err)
	}
	if row.Revoked || row.AccessToken == "" {
		return nil, apperr.AuthorizationExpired(a.provider, errors.New("credential revoked"))
	}

	token := row.toToken(a.decryptToken)
	if token.Expiry.IsZero() || time.Until(token.Expiry) > refreshSkew {
		return token, nil
	}
	return a.refresh(ctx, businessID, token)
}

func (a *CredentialAdapter) refresh(ctx context.Context, businessID uuid.UUID, token *oauth2.Token) (*oauth2.Token, error) {
	if a.oauthConfig == nil || token.RefreshToken == "" {
		return nil, apperr.AuthorizationExpired(a.provider, errors.New("token expired and cannot be refreshed"))
	}

	v, err, _ := a.refreshGroup.Do(businessID.String(), func() (interface{}, error) {
		// Force a refresh: an expiry inside the skew window is still "valid" to oauth2.
		stale := *token
		stale.Expiry = time.Now().Add(-time.Minute)
		fresh, err := a.oauthConfig.TokenSource(ctx, &stale).Token()
		if err != nil {
			return nil, err
		}
		if err := a.storeToken(ctx, businessID, fresh); err != nil {
			logger.Warn("[CredentialAdapter.refresh] failed to persist refreshed token for %s: %v", businessID, err)
		}
		return fresh, nil
	})
	if err != nil {
		if isTokenExpiredError(err) {
			logger.Warn("[CredentialAdapter.refresh] token revoked for business %s: %v", businessID, err)
			a.markRevoked(ctx, businessID)
			return nil, apperr.AuthorizationExpired(a.provider, err)
		}
		return nil, apperr.ProviderUnavailable(a.provider, err)
	}
	return v.(*oauth2.Token), nil
}

func (a *CredentialAdapter) storeToken(ctx context.Context, businessID uuid.UUID, token *oauth2.Token) error {
	query := `
		UPDATE calendar_credentials
		SET access_token = $3,
		    refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
		    token_type = $5,
		    expires_at = $6,
		    updated_at = NOW()
		WHERE business_id = $1 AND provider = $2`

	var expiry sql.NullTime
	if !token.Expiry.IsZero() {
		expiry = sql.NullTime{Time: token.Expiry, Valid: true}
	}
	_, err := a.db.ExecContext(ctx, query, businessID, a.provider,
		a.encryptToken(token.AccessToken), a.encryptToken(token.RefreshToken), token.TokenType, expiry)
	return err
}

func (a *CredentialAdapter) markRevoked(ctx context.Context, businessID uuid.UUID) {
	_, err := a.db.ExecContext(ctx,
		`UPDATE calendar_credentials SET revoked = true, updated_at = NOW() WHERE business_id = $1 AND provider = $2`,
		businessID, a.provider)
	if err != nil {
		logger.Error("[CredentialAdapter.markRevoked] failed for %s: %v", businessID, err)
	}
}

// isTokenExpiredError matches Google OAuth errors meaning the grant is permanently invalid.
func isTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
		return retrieveErr.ErrorCode == "invalid_grant" || retrieveErr.ErrorCode == "invalid_client"
	}
	errStr := err.Error()
	return strings.Contains(errStr, "invalid_client") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "Token has been expired or revoked") ||
		strings.Contains(errStr, "Token has been revoked")
}
