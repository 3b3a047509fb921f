package shared

// Action names checked through the permission resolver. Workflow transitions
// carry their own action name so that e.g. approving a purchase order can be
// granted independently from editing one.
const (
	ActionRead    = "read"
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionRestore = "restore"

	ActionSubmit  = "submit"
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionCancel  = "cancel"
	ActionAccept  = "accept"
	ActionProcess = "process"
	ActionClear   = "clear"

	ActionApproveVariance = "approve_variance"
)
