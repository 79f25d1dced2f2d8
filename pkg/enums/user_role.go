package enums

// UserRole is carried in access tokens and gates admin-only routes.
type UserRole string

const (
	UserRoleCustomer UserRole = "customer"
	UserRoleAdmin    UserRole = "admin"
)

var userRoles = newSet("user role", UserRoleCustomer, UserRoleAdmin)

func (r UserRole) String() string { return string(r) }

func (r UserRole) IsValid() bool { return userRoles.has(r) }

func ParseUserRole(value string) (UserRole, error) { return userRoles.parse(value) }
