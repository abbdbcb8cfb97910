package auth

// Permission names checked against a (user, tournament) scope. Grants are
// additive only; the absence of a grant is the only denial mechanism.
const (
	PermissionView             = "tournament:view"
	PermissionJoin             = "tournament:join"
	PermissionUpdateSettings   = "tournament:settings:update"
	PermissionDeleteTournament = "tournament:delete"

	PermissionCreateMatch         = "tournament:match:create"
	PermissionUpdateMatch         = "tournament:match:update"
	PermissionDeleteMatch         = "tournament:match:delete"
	PermissionAddUserToMatch      = "tournament:match:add_user"
	PermissionRemoveUserFromMatch = "tournament:match:remove_user"
	PermissionSetMatchLeader      = "tournament:match:set_leader"
	PermissionSetMatchMap         = "tournament:match:set_map"

	PermissionCreateQualifier = "tournament:qualifier:create"
	PermissionUpdateQualifier = "tournament:qualifier:update"
	PermissionDeleteQualifier = "tournament:qualifier:delete"
	PermissionSubmitScores    = "tournament:qualifier:submit_scores"
	PermissionGetScores       = "tournament:qualifier:get_scores"
)

// baselinePermissions is granted at wildcard scope to every verified
// identity: enough to discover and join tournaments, nothing scoped. The
// read-only sentinel deliberately lacks join, so observers never create a
// live presence.
var baselinePermissions = []string{
	PermissionView,
	PermissionJoin,
}

// readOnlyPermissions is the fixed minimal grant set for credential-less
// observers, enough to watch state but never mutate it.
var readOnlyPermissions = []string{
	PermissionView,
	PermissionGetScores,
}

// coordinatorPermissions is the default grant set applied when a tournament
// creator authorizes another user as a match coordinator.
var coordinatorPermissions = []string{
	PermissionView,
	PermissionJoin,
	PermissionCreateMatch,
	PermissionUpdateMatch,
	PermissionDeleteMatch,
	PermissionAddUserToMatch,
	PermissionRemoveUserFromMatch,
	PermissionSetMatchLeader,
	PermissionSetMatchMap,
	PermissionGetScores,
}

// playerPermissions is the default grant set for participating players.
var playerPermissions = []string{
	PermissionView,
	PermissionJoin,
	PermissionSubmitScores,
	PermissionGetScores,
}

// ownerPermissions is the grant set for a tournament's creator: every
// match and qualifier permission plus settings and deletion rights.
var ownerPermissions = []string{
	PermissionView,
	PermissionJoin,
	PermissionUpdateSettings,
	PermissionDeleteTournament,
	PermissionCreateMatch,
	PermissionUpdateMatch,
	PermissionDeleteMatch,
	PermissionAddUserToMatch,
	PermissionRemoveUserFromMatch,
	PermissionSetMatchLeader,
	PermissionSetMatchMap,
	PermissionCreateQualifier,
	PermissionUpdateQualifier,
	PermissionDeleteQualifier,
	PermissionSubmitScores,
	PermissionGetScores,
}

// OwnerPermissions returns a copy of the tournament-creator grant set.
func OwnerPermissions() []string {
	return append([]string(nil), ownerPermissions...)
}

// CoordinatorPermissions returns a copy of the default coordinator grant set.
func CoordinatorPermissions() []string {
	return append([]string(nil), coordinatorPermissions...)
}

// PlayerPermissions returns a copy of the default player grant set.
func PlayerPermissions() []string {
	return append([]string(nil), playerPermissions...)
}
