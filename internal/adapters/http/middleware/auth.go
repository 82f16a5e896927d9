package middleware

import (
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/trmnl-quotes/internal/adapters/http/dto"
	"github.com/jsamuelsen/trmnl-quotes/internal/platform/config"
)

// ContextKeyClaims is the gin key holding the caller's *Claims.
const ContextKeyClaims = "claims"

// Header names used when AuthConfig leaves them empty.
const (
	defaultSubjectHeader = "X-User-ID"
	defaultRolesHeader   = "X-User-Roles"
	defaultScopesHeader  = "X-User-Scopes"
)

// Claims is the caller identity forwarded by the gateway in front of the
// service. Tokens are verified there; the headers are trusted here.
type Claims struct {
	Subject string
	Roles   []string
	Scopes  []string
}

// HasRole reports whether role was granted.
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// HasScope reports whether scope was granted.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

// headerNames resolves the configured identity headers.
func headerNames(cfg *config.AuthConfig) (subject, roles, scopes string) {
	subject, roles, scopes = defaultSubjectHeader, defaultRolesHeader, defaultScopesHeader
	if cfg == nil {
		return subject, roles, scopes
	}

	subject = headerOr(cfg.SubjectHeader, subject)
	roles = headerOr(cfg.RolesHeader, roles)
	scopes = headerOr(cfg.ScopesHeader, scopes)

	return subject, roles, scopes
}

func headerOr(v, fallback string) string {
	if v == "" {
		return fallback
	}

	return v
}

// ExtractClaims reads the identity headers. Roles are comma separated and
// scopes space separated, following the OAuth2 scope format.
func ExtractClaims(c *gin.Context, cfg *config.AuthConfig) *Claims {
	subjectHeader, rolesHeader, scopesHeader := headerNames(cfg)

	claims := &Claims{Subject: strings.TrimSpace(c.GetHeader(subjectHeader))}

	if roles := c.GetHeader(rolesHeader); roles != "" {
		claims.Roles = parseCommaSeparated(roles)
	}

	if scopes := c.GetHeader(scopesHeader); scopes != "" {
		claims.Scopes = strings.Fields(scopes)
	}

	return claims
}

// GetClaims returns the claims stored by RequireAuth or RequireRole, or nil.
func GetClaims(c *gin.Context) *Claims {
	claims, _ := c.Value(ContextKeyClaims).(*Claims)
	return claims
}

// RequireAuth rejects requests without a subject with 401 UNAUTHORIZED.
func RequireAuth(cfg *config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ExtractClaims(c, cfg)
		if claims.Subject == "" {
			dto.AbortWithErrorCode(c, dto.ErrorCodeUnauthorized, "authentication required")
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// RequireRole rejects callers without role with 403 FORBIDDEN. It reuses
// claims stored by an earlier RequireAuth.
func RequireRole(cfg *config.AuthConfig, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			claims = ExtractClaims(c, cfg)
			c.Set(ContextKeyClaims, claims)
		}

		if !claims.HasRole(role) {
			dto.AbortWithErrorCode(c, dto.ErrorCodeForbidden, "insufficient permissions: role "+role+" required")
			return
		}

		c.Next()
	}
}

// RequireScope rejects callers without scope with 403 FORBIDDEN. Like
// RequireRole it reuses claims stored earlier in the chain.
func RequireScope(cfg *config.AuthConfig, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			claims = ExtractClaims(c, cfg)
			c.Set(ContextKeyClaims, claims)
		}

		if !claims.HasScope(scope) {
			dto.AbortWithErrorCode(c, dto.ErrorCodeForbidden, "insufficient permissions: scope "+scope+" required")
			return
		}

		c.Next()
	}
}

// WriteGuard returns the handlers placed in front of the routes that add
// quotes or trigger a push: a subject check, plus the write role and write
// scope when configured. It is empty when auth is disabled.
func WriteGuard(cfg *config.AuthConfig) []gin.HandlerFunc {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	guard := []gin.HandlerFunc{RequireAuth(cfg)}
	if cfg.WriteRole != "" {
		guard = append(guard, RequireRole(cfg, cfg.WriteRole))
	}

	if cfg.WriteScope != "" {
		guard = append(guard, RequireScope(cfg, cfg.WriteScope))
	}

	return guard
}

func parseCommaSeparated(s string) []string {
	var out []string

	for part := range strings.SplitSeq(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}

	return out
}
