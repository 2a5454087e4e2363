package rbac

const RoleAdmin = "admin"

const (
	PermTestView         = "test:view"
	PermTestCreate       = "test:create"
	PermRegistrationView = "registration:view"
	PermGradingRun       = "grading:run"
	PermChartView        = "chart:view"
	PermEventView        = "event:view"
)

// Only allow-listed admins ever receive a role. New admin routes need their
// permission listed here before the role can reach them.
var RolePermissions = map[string][]string{
	RoleAdmin: {
		PermTestView,
		PermTestCreate,
		PermRegistrationView,
		PermGradingRun,
		PermChartView,
		PermEventView,
	},
}
