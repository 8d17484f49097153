// Package auth はFirebase IDトークンの検証を提供する。
package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
)

const (
	// defaultCertsURL はFirebase IDトークンの署名証明書（x509 PEM）の公開エンドポイント。
	defaultCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	// defaultCertsTTL はCache-Controlにmax-ageが無い場合の証明書キャッシュ期間。
	defaultCertsTTL = time.Hour
	certsCacheKey   = "certs"

	// refetchGuardKey は未知のkidによる証明書の再取得を間引くためのキー。
	refetchGuardKey    = "certs-refetch"
	minRefetchInterval = time.Minute

	issuerPrefix = "https://securetoken.google.com/"
	clockSkew    = 5 * time.Minute
)

// ErrInvalidToken はIDトークンが不正または期限切れであることを示す。
var ErrInvalidToken = errors.New("invalid id token")

// Token は検証済みIDトークンから取り出したユーザー情報。
type Token struct {
	UID      string
	Email    string
	AuthTime time.Time
}

type firebaseClaims struct {
	Email    string `json:"email"`
	AuthTime int64  `json:"auth_time"`
	jwt.RegisteredClaims
}

// FirebaseVerifier はFirebase IDトークン（RS256）を検証する。
// 署名証明書はCache-Controlのmax-ageに従ってキャッシュする。
type FirebaseVerifier struct {
	projectID  string
	httpClient *http.Client
	logger     *slog.Logger
	certs      *cache.Cache
	certsURL   string           // テスト用に差し替え可能
	now        func() time.Time // テスト用に差し替え可能
}

// NewFirebaseVerifier はFirebaseVerifierを生成する。
func NewFirebaseVerifier(projectID string, httpClient *http.Client, logger *slog.Logger) *FirebaseVerifier {
	return &FirebaseVerifier{
		projectID:  projectID,
		httpClient: httpClient,
		logger:     logger,
		certs:      cache.New(defaultCertsTTL, 10*time.Minute),
		certsURL:   defaultCertsURL,
		now:        time.Now,
	}
}

// Verify はIDトークンを検証し、ユーザー情報を返す。
// 署名、aud、iss、exp、iat、auth_time、subを検証する。
func (v *FirebaseVerifier) Verify(ctx context.Context, rawToken string) (*Token, error) {
	claims := &firebaseClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.projectID),
		jwt.WithIssuer(issuerPrefix+v.projectID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(v.now),
	)

	_, err := parser.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid header")
		}
		return v.publicKey(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" || len(claims.Subject) > 128 {
		return nil, fmt.Errorf("%w: invalid sub claim", ErrInvalidToken)
	}
	authTime := time.Unix(claims.AuthTime, 0)
	if claims.AuthTime == 0 || authTime.After(v.now().Add(clockSkew)) {
		return nil, fmt.Errorf("%w: invalid auth_time claim", ErrInvalidToken)
	}

	return &Token{UID: claims.Subject, Email: claims.Email, AuthTime: authTime}, nil
}

// publicKey はkidに対応する公開鍵を返す。
// 未知のkidの場合は証明書を再取得するが、再取得はminRefetchIntervalに1回までとする。
func (v *FirebaseVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if keys, ok := v.certs.Get(certsCacheKey); ok {
		if key, ok := keys.(map[string]*rsa.PublicKey)[kid]; ok {
			return key, nil
		}
		if err := v.certs.Add(refetchGuardKey, struct{}{}, minRefetchInterval); err != nil {
			v.logger.Debug("証明書の再取得を抑止しました", slog.String("kid", kid))
			return nil, fmt.Errorf("unknown kid: %s", kid)
		}
	}

	keys, err := v.fetchCerts(ctx)
	if err != nil {
		return nil, err
	}
	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("unknown kid: %s", kid)
	}
	return key, nil
}

// fetchCerts は署名証明書を取得してキャッシュする。
func (v *FirebaseVerifier) fetchCerts(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.logger.Error("署名証明書の取得に失敗しました", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to fetch signing certs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		v.logger.Error("署名証明書エンドポイントがエラーステータスを返しました", slog.Int("http_status", resp.StatusCode))
		return nil, fmt.Errorf("signing certs endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var pems map[string]string
	if err := json.Unmarshal(body, &pems); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(pems))
	for kid, pem := range pems {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			v.logger.Warn("署名証明書のパースに失敗しました", slog.String("kid", kid), slog.String("error", err.Error()))
			continue
		}
		keys[kid] = key
	}

	v.certs.Set(certsCacheKey, keys, maxAge(resp.Header.Get("Cache-Control")))
	return keys, nil
}

// maxAge はCache-Controlヘッダーからmax-ageを取り出す。無い場合はデフォルト値を返す。
func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)
		if v, ok := strings.CutPrefix(directive, "max-age="); ok {
			if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
				return time.Duration(sec) * time.Second
			}
		}
	}
	return defaultCertsTTL
}
