package rbac

import (
	"sort"
	"strings"
)

// Permission is an atomic, namespaced capability identifier. The set is
// closed: only the constants below are valid.
type Permission string

// PermissionCategory groups permissions by business area.
type PermissionCategory string

const (
	CategoryFilesystem PermissionCategory = "filesystem"
	CategoryVCS        PermissionCategory = "vcs"
	CategoryHR         PermissionCategory = "hr"
	CategoryFinance    PermissionCategory = "finance"
	CategoryLegal      PermissionCategory = "legal"
	CategoryAdmin      PermissionCategory = "admin"
)

const (
	// Filesystem
	PermissionFileRead   Permission = "file_read"
	PermissionFileWrite  Permission = "file_write"
	PermissionFileDelete Permission = "file_delete"

	// Version control
	PermissionGitRead   Permission = "git_read"
	PermissionGitCommit Permission = "git_commit"
	PermissionGitPush   Permission = "git_push"

	// HR
	PermissionHRISRead      Permission = "hris_read"
	PermissionHRISWrite     Permission = "hris_write"
	PermissionEmailSend     Permission = "email_send"
	PermissionCalendarWrite Permission = "calendar_write"
	PermissionPayrollRead   Permission = "payroll_read"
	PermissionPayrollWrite  Permission = "payroll_write"

	// Finance
	PermissionFinanceRead   Permission = "finance_read"
	PermissionPaymentSend   Permission = "payment_send"
	PermissionInvoiceCreate Permission = "invoice_create"
	PermissionBudgetApprove Permission = "budget_approve"

	// Legal
	PermissionLegalRead        Permission = "legal_read"
	PermissionContractSign     Permission = "contract_sign"
	PermissionDocumentGenerate Permission = "document_generate"

	// Admin
	PermissionUserManage     Permission = "user_manage"
	PermissionConfigWrite    Permission = "config_write"
	PermissionAuditRead      Permission = "audit_read"
	PermissionInfraDeploy    Permission = "infra_deploy"
	PermissionDomainRegister Permission = "domain_register"
	PermissionSMSSend        Permission = "sms_send"
)

var permissionCategories = map[Permission]PermissionCategory{
	PermissionFileRead:   CategoryFilesystem,
	PermissionFileWrite:  CategoryFilesystem,
	PermissionFileDelete: CategoryFilesystem,

	PermissionGitRead:   CategoryVCS,
	PermissionGitCommit: CategoryVCS,
	PermissionGitPush:   CategoryVCS,

	PermissionHRISRead:      CategoryHR,
	PermissionHRISWrite:     CategoryHR,
	PermissionEmailSend:     CategoryHR,
	PermissionCalendarWrite: CategoryHR,
	PermissionPayrollRead:   CategoryHR,
	PermissionPayrollWrite:  CategoryHR,

	PermissionFinanceRead:   CategoryFinance,
	PermissionPaymentSend:   CategoryFinance,
	PermissionInvoiceCreate: CategoryFinance,
	PermissionBudgetApprove: CategoryFinance,

	PermissionLegalRead:        CategoryLegal,
	PermissionContractSign:     CategoryLegal,
	PermissionDocumentGenerate: CategoryLegal,

	PermissionUserManage:     CategoryAdmin,
	PermissionConfigWrite:    CategoryAdmin,
	PermissionAuditRead:      CategoryAdmin,
	PermissionInfraDeploy:    CategoryAdmin,
	PermissionDomainRegister: CategoryAdmin,
	PermissionSMSSend:        CategoryAdmin,
}

// ParsePermission returns the permission named s, if it is a member of the
// closed set.
func ParsePermission(s string) (Permission, bool) {
	p := Permission(strings.TrimSpace(s))
	_, ok := permissionCategories[p]
	return p, ok
}

// Category returns the business area of p.
func (p Permission) Category() PermissionCategory {
	return permissionCategories[p]
}

// Valid reports whether p is a member of the closed set.
func (p Permission) Valid() bool {
	_, ok := permissionCategories[p]
	return ok
}

// AllPermissions returns every known permission, sorted.
func AllPermissions() []Permission {
	all := make([]Permission, 0, len(permissionCategories))
	for p := range permissionCategories {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	return all
}

// PermissionsIn returns the permissions of a category, sorted.
func PermissionsIn(category PermissionCategory) []Permission {
	var out []Permission
	for _, p := range AllPermissions() {
		if p.Category() == category {
			out = append(out, p)
		}
	}
	return out
}

// PermissionSet is an unordered set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from perms.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Union returns a new set holding the members of s and other.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	out := make(PermissionSet, len(s)+len(other))
	for p := range s {
		out[p] = struct{}{}
	}
	for p := range other {
		out[p] = struct{}{}
	}
	return out
}

// Missing returns the entries of required not in s, in the given order.
// Names outside the closed set are always missing.
func (s PermissionSet) Missing(required []string) []string {
	var missing []string
	for _, name := range required {
		p, ok := ParsePermission(name)
		if !ok || !s.Has(p) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Sorted returns the members in lexical order.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the members as sorted strings.
func (s PermissionSet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, p := range sorted {
		out[i] = string(p)
	}
	return out
}
