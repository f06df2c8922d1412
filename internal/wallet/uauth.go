package wallet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

const (
	ProviderUAuth = "custom-uauth"

	UAuthClientID    = "3418be8d-f3d7-4014-ac38-cd0ae4e54cd0"
	UAuthRedirectURI = "https://wave-jvs.netlify.app"
	UAuthScope       = "openid wallet"
)

var ErrInvalidIDToken = errors.New("invalid id token")

// UAuthOptions configures the identity handshake of the custom provider.
type UAuthOptions struct {
	ClientID    string
	RedirectURI string
	Scope       string
	AuthURL     string
	TokenURL    string
	// IDTokenKey verifies the id token signature when set, see LoadIDTokenKey.
	IDTokenKey any
}

// DefaultUAuthOptions returns the fixed client registration for the given endpoints.
func DefaultUAuthOptions(authURL, tokenURL string) UAuthOptions {
	return UAuthOptions{
		ClientID:    UAuthClientID,
		RedirectURI: UAuthRedirectURI,
		Scope:       UAuthScope,
		AuthURL:     authURL,
		TokenURL:    tokenURL,
	}
}

// UAuthProvider resolves the user's wallet address through an OpenID login
// and signs with the keystore account holding that address.
//
// Without an IDTokenKey the id token is trusted as received from the token
// endpoint over TLS and only its claims are checked. The address it names
// still has to be a local keystore account unlocked with its passphrase, so
// a forged token can select an account but never sign for it.
type UAuthProvider struct {
	oauth      oauth2.Config
	idTokenKey any
	authorizer Authorizer
	signers    *KeystoreProvider
	now        func() time.Time
}

// NewUAuthProvider creates the custom provider. A nil authorizer defaults to a
// RedirectAuthorizer for the configured redirect URI.
func NewUAuthProvider(opts UAuthOptions, signers *KeystoreProvider, authorizer Authorizer) *UAuthProvider {
	if authorizer == nil {
		authorizer = RedirectAuthorizer{RedirectURI: opts.RedirectURI}
	}
	return &UAuthProvider{
		oauth: oauth2.Config{
			ClientID:    opts.ClientID,
			RedirectURL: opts.RedirectURI,
			Scopes:      strings.Fields(opts.Scope),
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		idTokenKey: opts.IDTokenKey,
		authorizer: authorizer,
		signers:    signers,
		now:        time.Now,
	}
}

func (p *UAuthProvider) ID() string { return ProviderUAuth }

func (p *UAuthProvider) Display() Display {
	return Display{Name: "Unstoppable Domains", Description: "login with your domain"}
}

// Connect runs the authorization code flow with PKCE and unlocks the keystore
// account named by the id token's wallet_address claim.
func (p *UAuthProvider) Connect(ctx context.Context, pr Prompter) (*Session, error) {
	state := uuid.NewString()
	nonce := uuid.NewString()
	verifier := oauth2.GenerateVerifier()

	authURL := p.oauth.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("nonce", nonce),
	)
	code, err := p.authorizer.Authorize(ctx, pr, authURL, state)
	if err != nil {
		return nil, err
	}

	tok, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return nil, fmt.Errorf("token response without id_token: %w", ErrInvalidIDToken)
	}
	addr, err := p.walletAddress(raw, nonce)
	if err != nil {
		return nil, err
	}
	return p.signers.ConnectAccount(ctx, pr, addr, ProviderUAuth)
}

// Release locks the keystore account backing s.
func (p *UAuthProvider) Release(s *Session) {
	p.signers.Release(s)
}

type idTokenClaims struct {
	WalletAddress string `json:"wallet_address"`
	Nonce         string `json:"nonce"`
	jwt.RegisteredClaims
}

// LoadIDTokenKey reads the PEM encoded RSA, ECDSA or Ed25519 public key
// the issuer signs id tokens with.
func LoadIDTokenKey(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read id token key: %w", err)
	}
	if key, err := jwt.ParseRSAPublicKeyFromPEM(data); err == nil {
		return key, nil
	}
	if key, err := jwt.ParseECPublicKeyFromPEM(data); err == nil {
		return key, nil
	}
	key, err := jwt.ParseEdPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse id token key %s: %w", path, err)
	}
	return key, nil
}

func (p *UAuthProvider) parseIDToken(raw string, claims *idTokenClaims) error {
	if p.idTokenKey == nil {
		_, _, err := jwt.NewParser().ParseUnverified(raw, claims)
		return err
	}
	_, err := jwt.NewParser(jwt.WithTimeFunc(p.now)).ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return p.idTokenKey, nil
	})
	return err
}

// walletAddress checks the id token claims, and its signature when an
// IDTokenKey is configured.
func (p *UAuthProvider) walletAddress(raw, nonce string) (common.Address, error) {
	var claims idTokenClaims
	if err := p.parseIDToken(raw, &claims); err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}
	if !slices.Contains(claims.Audience, p.oauth.ClientID) {
		return common.Address{}, fmt.Errorf("%w: audience %v", ErrInvalidIDToken, claims.Audience)
	}
	if claims.ExpiresAt != nil && !p.now().Before(claims.ExpiresAt.Time) {
		return common.Address{}, fmt.Errorf("%w: expired at %s", ErrInvalidIDToken, claims.ExpiresAt.Time)
	}
	if claims.Nonce != nonce {
		return common.Address{}, fmt.Errorf("%w: nonce mismatch", ErrInvalidIDToken)
	}
	if !common.IsHexAddress(claims.WalletAddress) {
		return common.Address{}, fmt.Errorf("%w: wallet_address %q", ErrInvalidIDToken, claims.WalletAddress)
	}
	return common.HexToAddress(claims.WalletAddress), nil
}
