package auth

// Permission keys follow "resource:action". The catalog covers every
// protected operation of the booking backend; additions ship as reference
// data, not through the API.
const (
	PermUsersRead     = "users:read"
	PermUsersUpdate   = "users:update"
	PermUsersDelete   = "users:delete"
	PermRolesManage   = "roles:manage"
	PermProductsWrite = "products:write"
	PermServicesWrite = "services:write"
	PermPackagesWrite = "packages:write"
	PermBookingsRead  = "bookings:read"
	PermBookingsWrite = "bookings:write"
	PermPaymentsRead  = "payments:read"
	PermPaymentsWrite = "payments:write"
	PermAlbumsWrite   = "albums:write"
	PermFilesWrite    = "files:write"
)

// BuiltinPermissions is ensured at startup so role grants always have a
// catalog to reference.
var BuiltinPermissions = []Permission{
	{Key: PermUsersRead, Description: "Read user accounts"},
	{Key: PermUsersUpdate, Description: "Update user accounts"},
	{Key: PermUsersDelete, Description: "Deactivate user accounts"},
	{Key: PermRolesManage, Description: "Manage roles and assignments"},
	{Key: PermProductsWrite, Description: "Create and edit products"},
	{Key: PermServicesWrite, Description: "Create and edit services"},
	{Key: PermPackagesWrite, Description: "Create and edit packages"},
	{Key: PermBookingsRead, Description: "View bookings"},
	{Key: PermBookingsWrite, Description: "Create and edit bookings"},
	{Key: PermPaymentsRead, Description: "View payments"},
	{Key: PermPaymentsWrite, Description: "Record payments"},
	{Key: PermAlbumsWrite, Description: "Manage albums"},
	{Key: PermFilesWrite, Description: "Manage uploaded files"},
}
