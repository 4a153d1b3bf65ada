package catalog

// CommandType identifies a remote operation a terminal can be asked to run.
type CommandType string

const (
	CommandLock            CommandType = "LOCK"
	CommandUnlock          CommandType = "UNLOCK"
	CommandMaintenanceMode CommandType = "MAINTENANCE_MODE"
	CommandExitMaintenance CommandType = "EXIT_MAINTENANCE"
	CommandRestart         CommandType = "RESTART"
	CommandClearCache      CommandType = "CLEAR_CACHE"
	CommandForceUpdate     CommandType = "FORCE_UPDATE"
	CommandSyncData        CommandType = "SYNC_DATA"
	CommandRefreshMenu     CommandType = "REFRESH_MENU"
	CommandExportLogs      CommandType = "EXPORT_LOGS"
)

// Priority of a command invocation.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

// CommandDefinition is the static metadata for one command type.
type CommandDefinition struct {
	CommandType          CommandType `json:"command_type"`
	RequiresOnline       bool        `json:"requires_online"`
	RequiresConfirmation bool        `json:"requires_confirmation"`
	IsDangerous          bool        `json:"is_dangerous"`
	DefaultPriority      Priority    `json:"default_priority"`

	// AwaitsHeartbeat marks commands whose HTTP accept is not enough; the
	// terminal must push a status update before the control is released.
	AwaitsHeartbeat bool `json:"awaits_heartbeat"`
}

// ordered keeps All() deterministic for the catalog API endpoint.
var ordered = []CommandType{
	CommandLock,
	CommandUnlock,
	CommandMaintenanceMode,
	CommandExitMaintenance,
	CommandRestart,
	CommandClearCache,
	CommandForceUpdate,
	CommandSyncData,
	CommandRefreshMenu,
	CommandExportLogs,
}

var definitions = map[CommandType]CommandDefinition{
	CommandLock: {
		CommandType:          CommandLock,
		RequiresOnline:       true,
		RequiresConfirmation: true,
		IsDangerous:          false,
		DefaultPriority:      PriorityHigh,
		AwaitsHeartbeat:      true,
	},
	CommandUnlock: {
		CommandType:     CommandUnlock,
		RequiresOnline:  true,
		DefaultPriority: PriorityHigh,
		AwaitsHeartbeat: true,
	},
	CommandMaintenanceMode: {
		CommandType:          CommandMaintenanceMode,
		RequiresOnline:       true,
		RequiresConfirmation: true,
		DefaultPriority:      PriorityNormal,
		AwaitsHeartbeat:      true,
	},
	CommandExitMaintenance: {
		CommandType:     CommandExitMaintenance,
		RequiresOnline:  true,
		DefaultPriority: PriorityNormal,
		AwaitsHeartbeat: true,
	},
	CommandRestart: {
		CommandType:          CommandRestart,
		RequiresOnline:       true,
		RequiresConfirmation: true,
		IsDangerous:          true,
		DefaultPriority:      PriorityHigh,
		AwaitsHeartbeat:      true,
	},
	CommandClearCache: {
		CommandType:          CommandClearCache,
		RequiresOnline:       true,
		RequiresConfirmation: true,
		IsDangerous:          true,
		DefaultPriority:      PriorityLow,
	},
	CommandForceUpdate: {
		CommandType:          CommandForceUpdate,
		RequiresOnline:       true,
		RequiresConfirmation: true,
		IsDangerous:          true,
		DefaultPriority:      PriorityNormal,
	},
	CommandSyncData: {
		CommandType:     CommandSyncData,
		RequiresOnline:  true,
		DefaultPriority: PriorityNormal,
	},
	CommandRefreshMenu: {
		CommandType:     CommandRefreshMenu,
		RequiresOnline:  true,
		DefaultPriority: PriorityLow,
	},
	CommandExportLogs: {
		CommandType:     CommandExportLogs,
		RequiresOnline:  false,
		DefaultPriority: PriorityLow,
	},
}

// Definition returns the metadata for a command type. The second return is
// false for values outside the catalog.
func Definition(t CommandType) (CommandDefinition, bool) {
	def, ok := definitions[t]
	return def, ok
}

// MustDefinition is for callers that already validated the type.
func MustDefinition(t CommandType) CommandDefinition {
	def, ok := definitions[t]
	if !ok {
		panic("catalog: unknown command type " + string(t))
	}
	return def
}

// IsValid reports whether t is a catalogued command type.
func IsValid(t CommandType) bool {
	_, ok := definitions[t]
	return ok
}

// All returns every definition in a stable order.
func All() []CommandDefinition {
	out := make([]CommandDefinition, 0, len(ordered))
	for _, t := range ordered {
		out = append(out, definitions[t])
	}
	return out
}

// AwaitingHeartbeat lists the command types that hold their control until a
// terminal status push (or the fallback timeout) releases it.
func AwaitingHeartbeat() []CommandType {
	out := make([]CommandType, 0, len(ordered))
	for _, t := range ordered {
		if definitions[t].AwaitsHeartbeat {
			out = append(out, t)
		}
	}
	return out
}
