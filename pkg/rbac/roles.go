package rbac

// Role is a named bundle of base permissions plus hierarchy and capability
// flags. Roles are immutable at runtime.
type Role struct {
	ID          string
	Name        string
	Level       int
	Permissions PermissionSet
	CanDelegate bool
	CanApprove  bool
	Description string
}

// DefaultRoles returns the built-in role catalog keyed by role ID.
func DefaultRoles() map[string]Role {
	roles := []Role{
		{
			ID:          "admin",
			Name:        "Administrator",
			Level:       100,
			Permissions: NewPermissionSet(AllPermissions()...),
			CanDelegate: true,
			CanApprove:  true,
			Description: "Full platform access",
		},
		{
			ID:    "executive",
			Name:  "Executive",
			Level: 90,
			Permissions: NewPermissionSet(
				PermissionFinanceRead, PermissionBudgetApprove, PermissionLegalRead,
				PermissionHRISRead, PermissionPayrollRead, PermissionEmailSend,
				PermissionCalendarWrite, PermissionAuditRead, PermissionContractSign,
			),
			CanDelegate: true,
			CanApprove:  true,
			Description: "Company leadership with approval authority",
		},
		{
			ID:    "hr_manager",
			Name:  "HR Manager",
			Level: 70,
			Permissions: NewPermissionSet(
				PermissionHRISRead, PermissionHRISWrite, PermissionEmailSend,
				PermissionCalendarWrite, PermissionPayrollRead, PermissionDocumentGenerate,
			),
			CanDelegate: true,
			CanApprove:  true,
			Description: "Manages people operations",
		},
		{
			ID:    "hr_recruiter",
			Name:  "HR Recruiter",
			Level: 40,
			Permissions: NewPermissionSet(
				PermissionHRISRead, PermissionEmailSend, PermissionCalendarWrite,
			),
			Description: "Runs hiring pipelines",
		},
		{
			ID:    "finance_manager",
			Name:  "Finance Manager",
			Level: 70,
			Permissions: NewPermissionSet(
				PermissionFinanceRead, PermissionPaymentSend, PermissionInvoiceCreate,
				PermissionBudgetApprove, PermissionEmailSend,
			),
			CanDelegate: true,
			CanApprove:  true,
			Description: "Owns payments and budgets",
		},
		{
			ID:    "accountant",
			Name:  "Accountant",
			Level: 50,
			Permissions: NewPermissionSet(
				PermissionFinanceRead, PermissionInvoiceCreate,
			),
			Description: "Bookkeeping and invoicing",
		},
		{
			ID:    "legal_counsel",
			Name:  "Legal Counsel",
			Level: 60,
			Permissions: NewPermissionSet(
				PermissionLegalRead, PermissionContractSign, PermissionDocumentGenerate,
				PermissionEmailSend,
			),
			CanApprove:  true,
			Description: "Contracts and compliance",
		},
		{
			ID:    "engineer",
			Name:  "Engineer",
			Level: 50,
			Permissions: NewPermissionSet(
				PermissionFileRead, PermissionFileWrite, PermissionGitRead,
				PermissionGitCommit, PermissionGitPush,
			),
			Description: "Builds and ships software",
		},
		{
			ID:    "devops",
			Name:  "DevOps",
			Level: 60,
			Permissions: NewPermissionSet(
				PermissionFileRead, PermissionFileWrite, PermissionFileDelete,
				PermissionGitRead, PermissionInfraDeploy, PermissionDomainRegister,
			),
			CanApprove:  true,
			Description: "Runs infrastructure",
		},
		{
			ID:          "viewer",
			Name:        "Viewer",
			Level:       10,
			Permissions: NewPermissionSet(PermissionFileRead, PermissionGitRead),
			Description: "Read-only access",
		},
	}

	catalog := make(map[string]Role, len(roles))
	for _, role := range roles {
		catalog[role.ID] = role
	}
	return catalog
}
