package models

// Feature names the dashboard toggles. The server computes availability and
// enforces the matching gate independently.
type Feature string

const (
	FeatureBanUsers        Feature = "ban_users"
	FeatureFreezeDeals     Feature = "freeze_deals"
	FeatureBroadcast       Feature = "broadcast"
	FeatureEditFees        Feature = "edit_fees"
	FeatureEditPermissions Feature = "edit_permissions"
	FeatureEditBotMessages Feature = "edit_bot_messages"
	FeatureResetGroups     Feature = "reset_groups"
	FeatureLockGroups      Feature = "lock_groups"
	FeatureExportKeys      Feature = "export_keys"
	FeatureManualPayout    Feature = "manual_payout"
	FeatureExportData      Feature = "export_data"
	FeatureViewAudit       Feature = "view_audit_logs"
)

// capabilityFeatures are unlocked by a single capability. Every other
// feature is owner only.
var capabilityFeatures = map[Feature]Capability{
	FeatureBanUsers:    CapabilityBan,
	FeatureFreezeDeals: CapabilityFreeze,
	FeatureBroadcast:   CapabilityBroadcast,
	FeatureEditFees:    CapabilityEditFees,
}

var ownerOnlyFeatures = []Feature{
	FeatureEditPermissions,
	FeatureEditBotMessages,
	FeatureResetGroups,
	FeatureLockGroups,
	FeatureExportKeys,
	FeatureManualPayout,
	FeatureExportData,
	FeatureViewAudit,
}

// Features computes availability flags. caps is ignored for owners.
func Features(isOwner bool, caps Capabilities) map[Feature]bool {
	out := make(map[Feature]bool, len(capabilityFeatures)+len(ownerOnlyFeatures))
	for f, c := range capabilityFeatures {
		out[f] = isOwner || caps.Has(c)
	}
	for _, f := range ownerOnlyFeatures {
		out[f] = isOwner
	}
	return out
}
