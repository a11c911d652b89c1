package models

// Actor is the authenticated caller handed explicitly to service operations.
type Actor struct {
	UserID    string
	Role      UserRole
	Email     string
	IP        string
	UserAgent string
}

// ActorFromClaims builds an actor from verified token claims. Nil claims yield a nil actor.
func ActorFromClaims(claims *JWTClaims, ip, userAgent string) *Actor {
	if claims == nil {
		return nil
	}
	return &Actor{UserID: claims.UserID, Role: claims.Role, Email: claims.Email, IP: ip, UserAgent: userAgent}
}

// Can reports whether the actor's role grants the capability.
func (a *Actor) Can(capability Capability) bool {
	if a == nil {
		return false
	}
	return a.Role.Can(capability)
}
