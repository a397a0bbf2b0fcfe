package models

// Audited actions. Values are stable; SIEM rules match on them.
const (
	ActionPermissionSet    = "moderator.permission.set"
	ActionPermissionUpsert = "moderator.permission.upsert"
	ActionDealHandled      = "moderator.deal_handled"

	ActionFeeUpdate = "fees.update"
	ActionFeeSeed   = "fees.seed"

	ActionGroupAllocate = "group.allocate"
	ActionGroupBind     = "group.bind"
	ActionGroupComplete = "group.complete"
	ActionGroupRelease  = "group.release"
	ActionGroupReset    = "group.reset"
	ActionGroupLock     = "group.lock"
	ActionGroupSeed     = "group.seed"

	ActionKeyExportRequest = "keys.export.request"
	ActionKeyExportConfirm = "keys.export.confirm"
	ActionKeyExportExpire  = "keys.export.expire"
	ActionPayoutRequest    = "payout.manual.request"
	ActionPayoutConfirm    = "payout.manual.confirm"
	ActionPayoutReject     = "payout.manual.reject"
	ActionPayoutExpire     = "payout.manual.expire"

	ActionDataExport        = "system.export"
	ActionBotMessagesUpdate = "bot.messages.update"
)
