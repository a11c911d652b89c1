package models

// Capability names a permission checked before an operation runs.
type Capability string

const (
	CapRegistrationSubmit Capability = "registration:submit"
	CapRegistrationReview Capability = "registration:review"
	CapRegistrationList   Capability = "registration:list"
	CapCatalogRead        Capability = "catalog:read"
	CapCatalogManage      Capability = "catalog:manage"
	CapNotificationSend   Capability = "notification:send"
	CapUserManage         Capability = "user:manage"
)

var roleCapabilities = map[UserRole]map[Capability]struct{}{
	RoleStudent: capabilitySet(CapRegistrationSubmit, CapCatalogRead),
	RoleAdvisor: capabilitySet(CapRegistrationReview, CapRegistrationList, CapCatalogRead, CapNotificationSend),
	RoleAdmin:   capabilitySet(CapRegistrationList, CapCatalogRead, CapCatalogManage, CapNotificationSend, CapUserManage),
}

func capabilitySet(caps ...Capability) map[Capability]struct{} {
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Can reports whether the role grants the capability.
func (r UserRole) Can(capability Capability) bool {
	_, ok := roleCapabilities[r][capability]
	return ok
}
