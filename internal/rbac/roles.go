package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleTrainee      = "trainee"
	RoleMentor       = "mentor"
	RoleTrainingLead = "training_lead"
	RoleSuperAdmin   = "super_admin"
	RoleTaskRunner   = "task_runner" // hidden role for scheduled jobs
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

func IsHiddenRole(role string) bool { return role == RoleTaskRunner }
