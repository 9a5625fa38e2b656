package prometheus

import "github.com/MrEthical07/authcore"

type counterDef struct {
	id   authcore.MetricID
	name string
	help string
}

var counterDefs = []counterDef{
	{authcore.MetricLoginSuccess, "authcore_login_success_total", "Successful logins."},
	{authcore.MetricLoginFailure, "authcore_login_failure_total", "Failed logins, including unknown emails."},
	{authcore.MetricAccountLocked, "authcore_account_locked_total", "Accounts locked after too many failures."},
	{authcore.MetricRegisterSuccess, "authcore_register_success_total", "Registered users."},
	{authcore.MetricRegisterDuplicate, "authcore_register_duplicate_total", "Registrations rejected for a taken email."},
	{authcore.MetricTokenValidateFailure, "authcore_token_validate_failure_total", "Rejected access tokens."},
	{authcore.MetricRefreshSuccess, "authcore_refresh_success_total", "Successful token refreshes."},
	{authcore.MetricRefreshFailure, "authcore_refresh_failure_total", "Failed token refreshes."},
	{authcore.MetricRefreshReuseDetected, "authcore_refresh_reuse_detected_total", "Refresh tokens presented after rotation."},
	{authcore.MetricSessionCreated, "authcore_session_created_total", "Created sessions."},
	{authcore.MetricSessionEvicted, "authcore_session_evicted_total", "Sessions evicted by the per-user cap."},
	{authcore.MetricSessionInvalidated, "authcore_session_invalidated_total", "Sessions destroyed by logout."},
	{authcore.MetricSuspiciousSessions, "authcore_suspicious_sessions_total", "Logins that left a user with sessions from too many IPs."},
	{authcore.MetricLogout, "authcore_logout_total", "Single-session logouts."},
	{authcore.MetricLogoutAll, "authcore_logout_all_total", "Logout-all operations."},
	{authcore.MetricPasswordChangeSuccess, "authcore_password_change_success_total", "Successful password changes."},
	{authcore.MetricPasswordChangeFailure, "authcore_password_change_failure_total", "Rejected password changes."},
	{authcore.MetricPasswordResetRequest, "authcore_password_reset_request_total", "Password reset requests."},
	{authcore.MetricPasswordResetConfirmSuccess, "authcore_password_reset_confirm_success_total", "Completed password resets."},
	{authcore.MetricPasswordResetConfirmFailure, "authcore_password_reset_confirm_failure_total", "Rejected password reset completions."},
	{authcore.MetricRoleChanged, "authcore_role_changed_total", "Role changes."},
	{authcore.MetricAccountDeactivated, "authcore_account_deactivated_total", "Account deactivations."},
	{authcore.MetricAccountActivated, "authcore_account_activated_total", "Account reactivations."},
	{authcore.MetricAccountUnlocked, "authcore_account_unlocked_total", "Manual account unlocks."},
}

const (
	latencyName = "authcore_validate_latency_seconds"
	latencyHelp = "ValidateToken latency."
)

// Upper bounds of the engine's latency buckets, in seconds.
var latencyBounds = [...]string{"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf"}

func cumulative(raw []uint64) [len(latencyBounds)]uint64 {
	var out [len(latencyBounds)]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
