package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/pos-engine/pkg/config"
	"github.com/angelmondragon/pos-engine/pkg/enums"
)

func testConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "pos-register",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testConfig()
	now := time.Now().UTC()
	operatorID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		OperatorID: operatorID,
		RegisterID: "reg-01",
		Role:       enums.OperatorManager,
		SessionID:  "session-1",
	})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.OperatorID != operatorID {
		t.Fatalf("expected operator_id %s, got %s", operatorID, claims.OperatorID)
	}
	if claims.RegisterID != "reg-01" {
		t.Fatalf("unexpected register %q", claims.RegisterID)
	}
	if claims.Role != enums.OperatorManager {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.SessionID() != "session-1" {
		t.Fatalf("unexpected session id %q", claims.SessionID())
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.Sub(now) < 29*time.Minute {
		t.Fatalf("expiry not applied")
	}
}

func TestMintAccessTokenGeneratesSessionID(t *testing.T) {
	token, err := MintAccessToken(testConfig(), time.Now(), AccessTokenPayload{
		OperatorID: uuid.New(),
		RegisterID: "reg-01",
		Role:       enums.OperatorCashier,
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	claims, err := ParseAccessToken(testConfig(), token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := uuid.Parse(claims.SessionID()); err != nil {
		t.Fatalf("expected generated uuid jti, got %q", claims.SessionID())
	}
}

func TestMintAccessTokenValidation(t *testing.T) {
	base := AccessTokenPayload{OperatorID: uuid.New(), RegisterID: "reg-01", Role: enums.OperatorCashier}

	cases := map[string]func(*config.JWTConfig, *AccessTokenPayload){
		"missing secret":   func(c *config.JWTConfig, _ *AccessTokenPayload) { c.Secret = "" },
		"missing issuer":   func(c *config.JWTConfig, _ *AccessTokenPayload) { c.Issuer = "" },
		"missing operator": func(_ *config.JWTConfig, p *AccessTokenPayload) { p.OperatorID = uuid.Nil },
		"missing register": func(_ *config.JWTConfig, p *AccessTokenPayload) { p.RegisterID = " " },
		"bad role":         func(_ *config.JWTConfig, p *AccessTokenPayload) { p.Role = "owner" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			payload := base
			mutate(&cfg, &payload)
			if _, err := MintAccessToken(cfg, time.Now(), payload); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseAccessTokenRejectsExpiredAndTampered(t *testing.T) {
	cfg := testConfig()
	payload := AccessTokenPayload{OperatorID: uuid.New(), RegisterID: "reg-01", Role: enums.OperatorCashier}

	expired, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), payload)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(cfg, expired); err == nil {
		t.Fatal("expected expired token to be rejected")
	}

	valid, err := MintAccessToken(cfg, time.Now(), payload)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	other := cfg
	other.Secret = "different"
	if _, err := ParseAccessToken(other, valid); err == nil {
		t.Fatal("expected signature mismatch")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{OperatorID: uuid.New(), RegisterID: "reg-01"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if _, err := ParseAccessToken(cfg, unsigned); err == nil || !strings.Contains(err.Error(), "signing method") {
		t.Fatalf("expected signing method error, got %v", err)
	}
}
