package auth

import (
	"sort"

	"retail-core/internal/models"
)

// Action is a permission checked by the API layer
type Action string

const (
	ProductsRead   Action = "products:read"
	ProductsWrite  Action = "products:write"
	ProductsDelete Action = "products:delete"

	CustomersRead   Action = "customers:read"
	CustomersWrite  Action = "customers:write"
	CustomersDelete Action = "customers:delete"

	OrdersRead   Action = "orders:read"
	OrdersCreate Action = "orders:create"
	OrdersEdit   Action = "orders:edit"
	OrdersDelete Action = "orders:delete"

	ReturnsRead   Action = "returns:read"
	ReturnsCreate Action = "returns:create"
	ReturnsDecide Action = "returns:decide"
	ReturnsDelete Action = "returns:delete"

	InvoicesRead     Action = "invoices:read"
	InvoicesGenerate Action = "invoices:generate"
	InvoicesEdit     Action = "invoices:edit"
	InvoicesDelete   Action = "invoices:delete"

	ExpensesRead   Action = "expenses:read"
	ExpensesWrite  Action = "expenses:write"
	ExpensesDelete Action = "expenses:delete"

	ReportsRead Action = "reports:read"
	UsersManage Action = "users:manage"
)

var allActions = []Action{
	ProductsRead, ProductsWrite, ProductsDelete,
	CustomersRead, CustomersWrite, CustomersDelete,
	OrdersRead, OrdersCreate, OrdersEdit, OrdersDelete,
	ReturnsRead, ReturnsCreate, ReturnsDecide, ReturnsDelete,
	InvoicesRead, InvoicesGenerate, InvoicesEdit, InvoicesDelete,
	ExpensesRead, ExpensesWrite, ExpensesDelete,
	ReportsRead, UsersManage,
}

// readOnly is granted to every authenticated role
var readOnly = []Action{
	ProductsRead, CustomersRead, OrdersRead, ReturnsRead, ReturnsCreate,
	InvoicesRead, ExpensesRead, ReportsRead,
}

// policy is the single role -> permission table used by the API and
// exposed to clients through PermissionsFor.
var policy = map[string]map[Action]bool{
	models.RoleAdmin: grant(allActions),
	models.RoleManager: grant(readOnly,
		ProductsWrite,
		CustomersWrite, CustomersDelete,
		ReturnsDecide,
		InvoicesGenerate,
		ExpensesWrite, ExpensesDelete,
	),
	models.RoleSales: grant(readOnly,
		CustomersWrite,
		OrdersCreate,
		InvoicesGenerate,
	),
	models.RoleViewer: grant(readOnly),
}

func grant(base []Action, extra ...Action) map[Action]bool {
	set := make(map[Action]bool, len(base)+len(extra))
	for _, a := range base {
		set[a] = true
	}
	for _, a := range extra {
		set[a] = true
	}
	return set
}

// Allowed reports whether role may perform action
func Allowed(role string, action Action) bool {
	return policy[role][action]
}

// PermissionsFor lists the actions granted to role, sorted
func PermissionsFor(role string) []Action {
	out := make([]Action, 0, len(policy[role]))
	for a := range policy[role] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
