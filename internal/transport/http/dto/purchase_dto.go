package dto

type PurchaseConfirmRequest struct {
	Plan                  string `json:"plan"`
	Provider              string `json:"provider"`
	PurchaseToken         string `json:"purchase_token"`
	OriginalTransactionID string `json:"original_transaction_id,omitempty"`
}

type PurchaseConfirmResponse struct {
	OK          bool                `json:"ok"`
	Plan        string              `json:"plan"`
	Provider    string              `json:"provider"`
	Idempotent  bool                `json:"idempotent"`
	Entitlement EntitlementResponse `json:"entitlement"`
}
