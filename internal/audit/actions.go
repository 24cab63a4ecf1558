package audit

// Actions recorded by the credential services.
const (
	ActionTokenIssued        = "credential_token_issued"
	ActionTokenRedeemed      = "credential_token_redeemed"
	ActionNotificationFailed = "notification_failed"
	ActionLoginSuccess       = "login_success"
	ActionLoginFailure       = "login_failure"
	ActionLoginMFARequired   = "login_mfa_required"
	ActionMFASuccess         = "mfa_success"
	ActionMFAFailure         = "mfa_failure"
	ActionMFASetupStarted    = "mfa_setup_started"
	ActionMFAEnabled         = "mfa_enabled"
	ActionMFADisabled        = "mfa_disabled"
	ActionPasswordSet        = "password_set"
)

// Resources.
const (
	ResourceCredentialToken = "credential_token"
	ResourceSession         = "session"
	ResourceTwoFactor       = "two_factor"
	ResourcePassword        = "password"
)
