package models

// RouterSettings controls the assignment router, read at assignment time
// from the router_settings table. Defaults apply when a key is missing or
// the table is unreadable.
type RouterSettings struct {
	AutoAssignEnabled   bool `json:"auto_assign_enabled"`
	AutoAssignThreshold int  `json:"auto_assign_threshold"` // 0-100
}

// Setting keys in the router_settings table.
const (
	SettingAutoAssignEnabled   = "auto_assign_enabled"
	SettingAutoAssignThreshold = "auto_assign_threshold"
)

// DefaultRouterSettings are used when settings are unset or unreadable.
func DefaultRouterSettings() RouterSettings {
	return RouterSettings{
		AutoAssignEnabled:   true,
		AutoAssignThreshold: 60,
	}
}
