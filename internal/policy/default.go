package policy

// DefaultYAML is the starting policy shipped with the platform. It grants
// the least access each role needs: loan officers work their own caseload,
// underwriters see cases in review, compliance reads the ledger masked,
// fairness analysts get aggregates only, and the intake agent is the sole
// demographic collection path.
const DefaultYAML = `# fairgate access policy
operations:
  - applications.create
  - applications.read
  - applications.list
  - applications.decide
  - demographics.write
  - demographics.aggregate
  - extracted.scan
  - ledger.query
  - ledger.verify
  - ledger.export
  - policy.read
  - policy.reload
  - destinations.manage

roles:
  admin:
    operations:
      - name: "*"

  loan_officer:
    operations:
      - name: applications.create
      - name: applications.read
        scope: "assigned_to = {principal.id}"
        mask_fields: [ssn_last4]
      - name: applications.list
        scope: "assigned_to = {principal.id}"
        mask_fields: [ssn_last4]
      - name: applications.decide
        scope: "assigned_to = {principal.id}"

  underwriter:
    operations:
      - name: applications.read
        scope: "status = IN_REVIEW"
        mask_fields: [ssn_last4]
      - name: applications.list
        scope: "status = IN_REVIEW"
        mask_fields: [ssn_last4]
      - name: applications.decide

  compliance_officer:
    operations:
      - name: applications.read
        mask_fields: [ssn_last4, income_cents]
      - name: applications.list
        mask_fields: [ssn_last4, income_cents]
      - name: ledger.query
        mask_fields: [ssn_last4, income_cents]
      - name: ledger.verify
      - name: ledger.export
      - name: policy.read

  fairness_analyst:
    operations:
      - name: demographics.aggregate

  intake_agent:
    operations:
      - name: applications.create
      - name: demographics.write
      - name: extracted.scan
`
