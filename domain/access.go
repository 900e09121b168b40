package domain

// Area is a guarded part of the storefront.
type Area string

const (
	AreaAccount Area = "account"
	AreaSeller  Area = "seller"
	AreaAdmin   Area = "admin"
)

// ParseArea validates a raw area name.
func ParseArea(raw string) (Area, bool) {
	switch Area(raw) {
	case AreaAccount, AreaSeller, AreaAdmin:
		return Area(raw), true
	default:
		return "", false
	}
}

// Authorize decides whether the published view may enter area. Signed-out views get
// ErrUnauthorized, signed-in views without the role get ErrForbidden.
func Authorize(snap Snapshot, area Area) error {
	if !snap.Authenticated || snap.Identity == nil {
		return ErrUnauthorized
	}
	switch area {
	case AreaAdmin:
		if !snap.Identity.IsAdmin() {
			return ErrForbidden
		}
	case AreaSeller:
		if !snap.Identity.CanSell() {
			return ErrForbidden
		}
	}
	return nil
}
