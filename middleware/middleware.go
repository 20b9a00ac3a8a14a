// Package middleware provides HTTP claim-enforcement middleware for apigen.
package middleware

import (
	"encoding/json"

	"github.com/xraph/forge"

	"github.com/ew-kislov/apigen"
)

// ClaimResolver extracts the caller's claim from a request. A nil return
// means the request carries no usable identity.
type ClaimResolver func(ctx forge.Context) *apigen.Claim

// SubjectClaim resolves the claim from the Forge user ID attached by the
// upstream authentication layer. Roles are empty but non-nil so the claim
// validates; role-aware deployments supply their own resolver.
func SubjectClaim(ctx forge.Context) *apigen.Claim {
	userID := forge.UserIDFromContext(ctx.Context())
	if userID == "" {
		return nil
	}
	return &apigen.Claim{SubjectID: userID, Roles: []string{}}
}

// RequireClaim rejects requests whose claim does not validate, before the
// handler runs. Handlers re-resolve the claim and pass it to the generator
// via apigen.WithClaim or Params.Claim.
func RequireClaim(resolve ClaimResolver) forge.Middleware {
	if resolve == nil {
		resolve = SubjectClaim
	}
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			claim := resolve(ctx)
			if !claim.Valid() {
				return denyResponse(ctx, 401, "authentication required")
			}
			return next(ctx)
		}
	}
}

// RequireRole rejects requests whose claim lacks the given role.
func RequireRole(resolve ClaimResolver, role string) forge.Middleware {
	if resolve == nil {
		resolve = SubjectClaim
	}
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			claim := resolve(ctx)
			if !claim.Valid() {
				return denyResponse(ctx, 401, "authentication required")
			}
			if !claim.HasRole(role) {
				return denyResponse(ctx, 403, "access denied")
			}
			return next(ctx)
		}
	}
}

func denyResponse(ctx forge.Context, status int, msg string) error {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.Response().WriteHeader(status)
	return json.NewEncoder(ctx.Response()).Encode(map[string]string{"error": msg})
}
