package service

import (
	"fmt"

	"github.com/noah-isme/crams-api/internal/models"
	appErrors "github.com/noah-isme/crams-api/pkg/errors"
)

// authorize fails with UNAUTHORIZED when there is no caller and FORBIDDEN when the caller lacks the capability.
func authorize(actor *models.Actor, capability models.Capability) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.Can(capability) {
		return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("role %s lacks %s", actor.Role, capability))
	}
	return nil
}

// requireActor fails with UNAUTHORIZED when the request carries no identity.
func requireActor(actor *models.Actor) error {
	if actor == nil || actor.UserID == "" {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	return nil
}
