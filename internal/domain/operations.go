package domain

// Operation identifiers as registered in the policy file. Every HTTP route
// and agent tool maps to exactly one of these before authorization.
const (
	OpApplicationsCreate = "applications.create"
	OpApplicationsRead   = "applications.read"
	OpApplicationsList   = "applications.list"
	OpApplicationsDecide = "applications.decide"
	OpDemographicsWrite  = "demographics.write"
	OpDemographicsAgg    = "demographics.aggregate"
	OpExtractedScan      = "extracted.scan"
	OpLedgerQuery        = "ledger.query"
	OpLedgerVerify       = "ledger.verify"
	OpLedgerExport       = "ledger.export"
	OpPolicyRead         = "policy.read"
	OpPolicyReload       = "policy.reload"
	OpDestinationsManage = "destinations.manage"
)
