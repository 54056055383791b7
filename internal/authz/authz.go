// Package authz maps roles to capabilities. It is the single place where a
// role is compared with what it may do.
package authz

import "progitek/server/internal/models"

// Capability is an allowed operation, formatted "resource:action".
type Capability string

const (
	QuoteCreate   Capability = "quote:create"
	QuoteUpdate   Capability = "quote:update"
	QuoteDelete   Capability = "quote:delete"
	QuoteSubmit   Capability = "quote:submit"
	QuoteValidate Capability = "quote:validate"
	QuoteRespond  Capability = "quote:respond"

	InvoiceCreate Capability = "invoice:create"
	InvoiceUpdate Capability = "invoice:update"
	InvoicePay    Capability = "invoice:pay"

	ClientManage       Capability = "client:manage"
	MissionManage      Capability = "mission:manage"
	InterventionManage Capability = "intervention:manage"
	UserManage         Capability = "user:manage"
	AuditRead          Capability = "audit:read"
	ReportRead         Capability = "report:read"
	MessageSend        Capability = "message:send"
	DocumentManage     Capability = "document:manage"
)

// all is every capability, granted to admins.
var all = []Capability{
	QuoteCreate, QuoteUpdate, QuoteDelete, QuoteSubmit, QuoteValidate, QuoteRespond,
	InvoiceCreate, InvoiceUpdate, InvoicePay,
	ClientManage, MissionManage, InterventionManage, UserManage, AuditRead, ReportRead,
	MessageSend, DocumentManage,
}

// everyone holds the capabilities any authenticated user has.
var everyone = []Capability{QuoteCreate, QuoteUpdate, QuoteDelete, QuoteSubmit, QuoteRespond, InvoiceCreate, MessageSend, DocumentManage}

var matrix = buildMatrix(map[models.UserRole][]Capability{
	models.RoleAdmin: all,
	models.RoleDG: append(append([]Capability{}, everyone...),
		QuoteValidate, InvoiceUpdate, InvoicePay,
		ClientManage, MissionManage, InterventionManage, AuditRead, ReportRead),
	models.RoleCommercial: append(append([]Capability{}, everyone...),
		ClientManage, MissionManage, ReportRead),
	models.RoleComptable: append(append([]Capability{}, everyone...),
		InvoiceUpdate, InvoicePay, ReportRead),
	models.RoleTechnicien: append(append([]Capability{}, everyone...),
		InterventionManage),
})

func buildMatrix(src map[models.UserRole][]Capability) map[models.UserRole]map[Capability]struct{} {
	out := make(map[models.UserRole]map[Capability]struct{}, len(src))
	for role, caps := range src {
		set := make(map[Capability]struct{}, len(caps))
		for _, c := range caps {
			set[c] = struct{}{}
		}
		out[role] = set
	}
	return out
}

// Allowed reports whether role holds capability. Unknown roles hold nothing.
func Allowed(role models.UserRole, capability Capability) bool {
	set, ok := matrix[role]
	if !ok {
		return false
	}
	_, ok = set[capability]
	return ok
}

// Capabilities returns the capabilities of role, in declaration order.
func Capabilities(role models.UserRole) []Capability {
	var out []Capability
	for _, c := range all {
		if Allowed(role, c) {
			out = append(out, c)
		}
	}
	return out
}
